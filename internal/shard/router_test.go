package shard

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		name string
		city string
		want string
	}{
		{name: "plain", city: "Tofino", want: "Tofino"},
		{name: "lower case", city: "tofino", want: "Tofino"},
		{name: "two words", city: "Campbell River", want: "CampbellRiver"},
		{name: "hyphenated", city: "campbell-river", want: "CampbellRiver"},
		{name: "shouting with extra spaces", city: "CAMPBELL   RIVER", want: "CampbellRiver"},
		{name: "punctuation", city: "Cambell  River!", want: "CambellRiver"},
		{name: "empty", city: "", want: ""},
		{name: "only punctuation", city: "?!.", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCity(tt.city); got != tt.want {
				t.Fatalf("NormalizeCity(%q) = %q, want %q", tt.city, got, tt.want)
			}
		})
	}
}

func TestPartitionName(t *testing.T) {
	if got := PartitionName("Campbell River"); got != "OrderCampbellRiver" {
		t.Fatalf("PartitionName = %q, want OrderCampbellRiver", got)
	}
	if got := PartitionName(""); got != DefaultPartition {
		t.Fatalf("PartitionName(\"\") = %q, want %q", got, DefaultPartition)
	}
}

type stubStore struct {
	ensured map[string]int
	err     error
}

func (s *stubStore) EnsurePartition(ctx context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	if s.ensured == nil {
		s.ensured = make(map[string]int)
	}
	s.ensured[name]++
	return nil
}

type stubDirectory struct {
	cities []string
	err    error
}

func (d *stubDirectory) BranchCities(ctx context.Context) ([]string, error) {
	return d.cities, d.err
}

func TestPartitionFor_SameHandleForEquivalentCities(t *testing.T) {
	store := &stubStore{}
	r := NewRouter(store, &stubDirectory{})

	ctx := context.Background()

	a, err := r.PartitionFor(ctx, "Campbell River")
	if err != nil {
		t.Fatalf("PartitionFor error: %v", err)
	}
	b, err := r.PartitionFor(ctx, "campbell-river")
	if err != nil {
		t.Fatalf("PartitionFor error: %v", err)
	}
	c, err := r.PartitionFor(ctx, "CAMPBELL   RIVER")
	if err != nil {
		t.Fatalf("PartitionFor error: %v", err)
	}

	if a != b || b != c {
		t.Fatalf("equivalent cities must share one handle: %p %p %p", a, b, c)
	}
	if a.Name != "OrderCampbellRiver" {
		t.Fatalf("partition name = %q, want OrderCampbellRiver", a.Name)
	}
}

func TestPartitionFor_ProvisionsOnce(t *testing.T) {
	store := &stubStore{}
	r := NewRouter(store, &stubDirectory{})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := r.PartitionFor(ctx, "Tofino"); err != nil {
			t.Fatalf("PartitionFor error: %v", err)
		}
	}

	if store.ensured["OrderTofino"] != 1 {
		t.Fatalf("partition provisioned %d times, want 1", store.ensured["OrderTofino"])
	}
}

func TestPartitionFor_StoreErrorNotMemoized(t *testing.T) {
	store := &stubStore{err: errors.New("boom")}
	r := NewRouter(store, &stubDirectory{})

	if _, err := r.PartitionFor(context.Background(), "Tofino"); err == nil {
		t.Fatalf("expected error from store")
	}

	// После устранения ошибки партиция должна создаться.
	store.err = nil
	p, err := r.PartitionFor(context.Background(), "Tofino")
	if err != nil {
		t.Fatalf("PartitionFor error after recovery: %v", err)
	}
	if p.Name != "OrderTofino" {
		t.Fatalf("partition name = %q, want OrderTofino", p.Name)
	}
}

func TestAllPartitions(t *testing.T) {
	dir := &stubDirectory{cities: []string{"Tofino", "Campbell River", "tofino"}}
	r := NewRouter(&stubStore{}, dir)

	parts, err := r.AllPartitions(context.Background())
	if err != nil {
		t.Fatalf("AllPartitions error: %v", err)
	}

	var names []string
	for _, p := range parts {
		names = append(names, p.Name)
	}

	want := []string{"Order", "OrderTofino", "OrderCampbellRiver"}
	if len(names) != len(want) {
		t.Fatalf("partitions = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("partitions = %v, want %v", names, want)
		}
	}

	// Список пересчитывается при каждом вызове.
	dir.cities = append(dir.cities, "Nanaimo")
	parts, err = r.AllPartitions(context.Background())
	if err != nil {
		t.Fatalf("AllPartitions error: %v", err)
	}
	if len(parts) != 4 {
		t.Fatalf("partitions after directory change = %d, want 4", len(parts))
	}
}
