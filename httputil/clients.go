package httputil

import (
	"net/http"
	"time"
)

// Clients holds the shared HTTP clients for the pipeline's external
// collaborators. Every client carries a bounded timeout so no fetch,
// geocode, or webhook call can block a run indefinitely.
type Clients struct {
	Upstream *http.Client // MLS API + auth endpoint
	Geo      *http.Client // geocoding provider
	Webhook  *http.Client // downstream notification endpoint
}

func NewClients() *Clients {
	return &Clients{
		Upstream: &http.Client{Timeout: 60 * time.Second},
		Geo:      &http.Client{Timeout: 10 * time.Second},
		Webhook:  &http.Client{Timeout: 15 * time.Second},
	}
}
