package sequence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type atomicCounterStore struct {
	last int64
	err  error
}

func (s *atomicCounterStore) IncrementOrderCounter(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return atomic.AddInt64(&s.last, 1), nil
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{name: "first value padded", n: 1, want: "ORD-00001"},
		{name: "mid range", n: 1234, want: "ORD-01234"},
		{name: "padding floor", n: 99999, want: "ORD-99999"},
		{name: "beyond padding not truncated", n: 123456, want: "ORD-123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.n); got != tt.want {
				t.Fatalf("Format(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestNext_ConcurrentCallsDistinct(t *testing.T) {
	g := NewGenerator(&atomicCounterStore{})

	const n = 100
	results := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := g.Next(context.Background())
			if err != nil {
				t.Errorf("Next error: %v", err)
				return
			}
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, n)
	for number := range results {
		if seen[number] {
			t.Fatalf("duplicate order number %q", number)
		}
		seen[number] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(seen), n)
	}
}

func TestNext_StoreError(t *testing.T) {
	g := NewGenerator(&atomicCounterStore{err: errors.New("down")})

	if _, err := g.Next(context.Background()); err == nil {
		t.Fatalf("expected error from counter store")
	}
}
