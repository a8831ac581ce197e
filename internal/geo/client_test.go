package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/orderhub-system/internal/model"
)

func TestDistances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/distancematrix" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not passed, query: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("origins") == "" {
			t.Errorf("origins not passed")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","elements":[{"status":"OK","distance":12000},{"status":"ZERO_RESULTS"},{"status":"OK","distance":3400}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	elements, err := c.Distances(context.Background(), model.Coordinates{Lat: 49.15, Lng: -125.9}, []model.Coordinates{
		{Lat: 49.0, Lng: -125.0},
		{Lat: 50.0, Lng: -125.2},
		{Lat: 49.2, Lng: -125.9},
	})
	if err != nil {
		t.Fatalf("Distances error: %v", err)
	}

	if len(elements) != 3 {
		t.Fatalf("got %d elements, want 3", len(elements))
	}
	if elements[0].DistanceMeters != 12000 {
		t.Fatalf("first distance = %d, want 12000", elements[0].DistanceMeters)
	}
	if elements[1].Status == StatusOK {
		t.Fatalf("second element must be invalid")
	}
}

func TestDistances_ServiceLevelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	if _, err := c.Distances(context.Background(), model.Coordinates{}, nil); err == nil {
		t.Fatalf("expected error for non-OK service status")
	}
}

func TestDistances_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	if _, err := c.Distances(context.Background(), model.Coordinates{}, nil); err == nil {
		t.Fatalf("expected error for HTTP 500")
	}
}

func TestDistances_NotConfigured(t *testing.T) {
	var c *Client
	if _, err := c.Distances(context.Background(), model.Coordinates{}, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}

	c = NewClient("localhost:9999", "")
	if _, err := c.Distances(context.Background(), model.Coordinates{}, nil); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/geocode" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("address") != "123 Oak St, Tofino" {
			t.Errorf("address = %q", r.URL.Query().Get("address"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","lat":49.153,"lng":-125.906}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	coords, err := c.Geocode(context.Background(), "123 Oak St, Tofino")
	if err != nil {
		t.Fatalf("Geocode error: %v", err)
	}
	if coords.Lat != 49.153 || coords.Lng != -125.906 {
		t.Fatalf("coords = %+v", coords)
	}
}
