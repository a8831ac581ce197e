package locator

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderhub-system/internal/geo"
	"github.com/mmeshcher/orderhub-system/internal/model"
)

type stubDirectory struct {
	branches []model.Branch
	err      error
}

func (d *stubDirectory) ListBranches(ctx context.Context) ([]model.Branch, error) {
	return d.branches, d.err
}

type stubDistance struct {
	elements []geo.Element
	err      error
	calls    int
}

func (s *stubDistance) Distances(ctx context.Context, origin model.Coordinates, destinations []model.Coordinates) ([]geo.Element, error) {
	s.calls++
	return s.elements, s.err
}

func testBranches() []model.Branch {
	return []model.Branch{
		{Name: "Victoria", City: "Victoria", Location: &model.Coordinates{Lat: 48.4, Lng: -123.4}},
		{Name: "Tofino", City: "Tofino", Location: &model.Coordinates{Lat: 49.2, Lng: -125.9}},
		{Name: "Campbell River", City: "Campbell River"},
	}
}

func TestLocate_PicksSmallestValidDistance(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	// Элементы соответствуют филиалам с координатами: Victoria, Tofino.
	dist := &stubDistance{elements: []geo.Element{
		{Status: geo.StatusOK, DistanceMeters: 90000},
		{Status: geo.StatusOK, DistanceMeters: 4200},
	}}

	l := New(dir, dist, zap.NewNop())

	b := l.Locate(context.Background(), Request{Coords: &model.Coordinates{Lat: 49.15, Lng: -125.9}})
	if b == nil || b.Name != "Tofino" {
		t.Fatalf("Locate = %+v, want Tofino", b)
	}
	if dist.calls != 1 {
		t.Fatalf("distance service called %d times, want 1", dist.calls)
	}
}

func TestLocate_InvalidElementsIgnored(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	dist := &stubDistance{elements: []geo.Element{
		{Status: "ZERO_RESULTS"},
		{Status: geo.StatusOK, DistanceMeters: 999999},
	}}

	l := New(dir, dist, zap.NewNop())

	b := l.Locate(context.Background(), Request{Coords: &model.Coordinates{}})
	if b == nil || b.Name != "Tofino" {
		t.Fatalf("Locate = %+v, want Tofino (single valid element)", b)
	}
}

func TestLocate_DistanceTieBrokenByOrder(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	dist := &stubDistance{elements: []geo.Element{
		{Status: geo.StatusOK, DistanceMeters: 5000},
		{Status: geo.StatusOK, DistanceMeters: 5000},
	}}

	l := New(dir, dist, zap.NewNop())

	b := l.Locate(context.Background(), Request{Coords: &model.Coordinates{}})
	if b == nil || b.Name != "Victoria" {
		t.Fatalf("Locate = %+v, want Victoria (first occurrence wins tie)", b)
	}
}

func TestLocate_FallsBackToCityTextOnDistanceFailure(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	dist := &stubDistance{err: errors.New("timeout")}

	l := New(dir, dist, zap.NewNop())

	b := l.Locate(context.Background(), Request{
		Coords: &model.Coordinates{Lat: 49.15, Lng: -125.9},
		City:   "tofino",
	})
	if b == nil || b.Name != "Tofino" {
		t.Fatalf("Locate = %+v, want Tofino via city text fallback", b)
	}
}

func TestLocate_CityTextMatching(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	l := New(dir, nil, zap.NewNop())

	tests := []struct {
		name string
		city string
		want string
	}{
		{name: "exact lower case", city: "tofino", want: "Tofino"},
		{name: "trimmed", city: "  Campbell River ", want: "Campbell River"},
		{name: "request city contains branch city", city: "greater victoria", want: "Victoria"},
		{name: "branch city contains request city", city: "campbell", want: "Campbell River"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := l.Locate(context.Background(), Request{City: tt.city})
			if b == nil || b.Name != tt.want {
				t.Fatalf("Locate(%q) = %+v, want %s", tt.city, b, tt.want)
			}
		})
	}
}

func TestLocate_NoMatch(t *testing.T) {
	dir := &stubDirectory{branches: testBranches()}
	l := New(dir, nil, zap.NewNop())

	if b := l.Locate(context.Background(), Request{City: "winnipeg"}); b != nil {
		t.Fatalf("Locate = %+v, want nil", b)
	}
	if b := l.Locate(context.Background(), Request{}); b != nil {
		t.Fatalf("Locate without city or coords = %+v, want nil", b)
	}
}

func TestLocate_DirectoryErrorNonFatal(t *testing.T) {
	dir := &stubDirectory{err: errors.New("db down")}
	l := New(dir, nil, zap.NewNop())

	if b := l.Locate(context.Background(), Request{City: "tofino"}); b != nil {
		t.Fatalf("Locate = %+v, want nil on directory error", b)
	}
}
