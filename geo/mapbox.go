package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mls_syncd/config"
	"mls_syncd/models"
)

// Result is the outcome of one geocode lookup. Unresolved results are
// explicit, never errors; the listing is simply stored without
// coordinates and retried on a later run.
type Result struct {
	Lat      float64
	Lng      float64
	Resolved bool
}

// Geocoder resolves street addresses to coordinates via the Mapbox
// places API. Calls are serialized through a minimum inter-call spacing
// to respect the provider's rate limit.
type Geocoder struct {
	baseURL     string
	token       string
	client      *http.Client
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

func NewGeocoder(cfg config.GeocodeConfig, client *http.Client) *Geocoder {
	return &Geocoder{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		client:      client,
		minInterval: cfg.MinInterval,
	}
}

type mapboxResponse struct {
	Features []struct {
		Center []float64 `json:"center"` // [lng, lat]
	} `json:"features"`
}

// Resolve geocodes a complete address. Transport and provider errors
// come back as unresolved, logged, never propagated.
func (g *Geocoder) Resolve(ctx context.Context, addr models.Address) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if wait := g.minInterval - time.Since(g.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Result{}
		}
	}
	g.lastCall = time.Now()

	query := strings.Join([]string{addr.Street, addr.City, addr.State, addr.Zip}, ", ")
	reqURL := fmt.Sprintf("%s/%s.json?access_token=%s&country=US&limit=1",
		g.baseURL, url.PathEscape(query), url.QueryEscape(g.token))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		log.Printf("Warning: geocode request for %q: %v", query, err)
		return Result{}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("Warning: geocode fetch for %q: %v", query, err)
		return Result{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Warning: geocode for %q returned status %d", query, resp.StatusCode)
		return Result{}
	}

	var mr mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		log.Printf("Warning: geocode decode for %q: %v", query, err)
		return Result{}
	}

	if len(mr.Features) == 0 || len(mr.Features[0].Center) < 2 {
		log.Printf("Geocode: no match for %q", query)
		return Result{}
	}

	center := mr.Features[0].Center
	return Result{Lat: center[1], Lng: center[0], Resolved: true}
}
