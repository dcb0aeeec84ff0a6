package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mls_syncd/config"
	"mls_syncd/models"
)

var testAddr = models.Address{
	Street: "4312 99th Street",
	City:   "Lubbock",
	State:  "TX",
	Zip:    "79424",
}

func newTestGeocoder(t *testing.T, minInterval time.Duration, handler http.HandlerFunc) *Geocoder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGeocoder(config.GeocodeConfig{
		BaseURL:     srv.URL,
		Token:       "test-token",
		MinInterval: minInterval,
	}, srv.Client())
}

func TestResolve_ParsesCenter(t *testing.T) {
	g := newTestGeocoder(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "test-token" {
			t.Fatalf("unexpected token %q", got)
		}
		fmt.Fprint(w, `{"features":[{"center":[-101.9185,33.5203]}]}`)
	})

	res := g.Resolve(context.Background(), testAddr)
	if !res.Resolved {
		t.Fatal("expected resolved result")
	}
	if res.Lat != 33.5203 || res.Lng != -101.9185 {
		t.Fatalf("unexpected coordinates %f,%f", res.Lat, res.Lng)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	g := newTestGeocoder(t, 0, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[]}`)
	})

	if res := g.Resolve(context.Background(), testAddr); res.Resolved {
		t.Fatalf("expected unresolved result, got %+v", res)
	}
}

func TestResolve_ProviderError(t *testing.T) {
	g := newTestGeocoder(t, 0, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if res := g.Resolve(context.Background(), testAddr); res.Resolved {
		t.Fatalf("expected unresolved result, got %+v", res)
	}
}

func TestResolve_SpacesCalls(t *testing.T) {
	const interval = 60 * time.Millisecond

	g := newTestGeocoder(t, interval, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[{"center":[-101.9,33.5]}]}`)
	})

	start := time.Now()
	g.Resolve(context.Background(), testAddr)
	g.Resolve(context.Background(), testAddr)

	if elapsed := time.Since(start); elapsed < interval {
		t.Fatalf("second call ran after %v, want at least %v between calls", elapsed, interval)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	g := newTestGeocoder(t, time.Minute, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[{"center":[-101.9,33.5]}]}`)
	})

	// First call records lastCall so the second one has to wait.
	g.Resolve(context.Background(), testAddr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := g.Resolve(ctx, testAddr); res.Resolved {
		t.Fatalf("expected unresolved result on cancelled context, got %+v", res)
	}
}
