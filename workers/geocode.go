package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"mls_syncd/models"
	"mls_syncd/services"
)

// BackfillStore is the slice of the listing store the backfill worker
// needs.
type BackfillStore interface {
	GetListingsMissingCoordinates(ctx context.Context, limit int) ([]*models.Listing, error)
	UpdateListingCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64) error
}

// GeocodeBackfillWorker sweeps stored listings that still lack
// coordinates and retries the lookup. Listings land here when the
// geocoder was unresolved during their sync run; the worker gives them
// another chance between runs.
type GeocodeBackfillWorker struct {
	store    BackfillStore
	geocoder services.Geocoder
	trigger  chan struct{}
}

func NewGeocodeBackfillWorker(store BackfillStore, geocoder services.Geocoder) *GeocodeBackfillWorker {
	return &GeocodeBackfillWorker{
		store:    store,
		geocoder: geocoder,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate sweep. Non-blocking; a pending trigger
// coalesces with the next one.
func (w *GeocodeBackfillWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run starts the backfill loop.
func (w *GeocodeBackfillWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Geocode backfill worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *GeocodeBackfillWorker) processBatch(ctx context.Context, batchSize int) {
	listings, err := w.store.GetListingsMissingCoordinates(ctx, batchSize)
	if err != nil {
		log.Printf("Geocode backfill: query error: %v", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	log.Printf("Geocode backfill: processing %d listings", len(listings))

	resolved := 0
	for _, listing := range listings {
		res := w.geocoder.Resolve(ctx, listing.Address)
		if !res.Resolved {
			continue
		}

		if err := w.store.UpdateListingCoordinates(ctx, listing.ID, res.Lat, res.Lng); err != nil {
			log.Printf("Warning: geocode backfill update %s: %v", listing.ListingKey, err)
			continue
		}
		resolved++
	}

	log.Printf("Geocode backfill: resolved %d of %d", resolved, len(listings))
}
