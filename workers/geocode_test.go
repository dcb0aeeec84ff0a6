package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"mls_syncd/geo"
	"mls_syncd/models"
)

type fakeBackfillStore struct {
	mu       sync.Mutex
	pending  []*models.Listing
	updated  map[uuid.UUID][2]float64
	failOnID uuid.UUID
}

func (s *fakeBackfillStore) GetListingsMissingCoordinates(ctx context.Context, limit int) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	return s.pending[:limit], nil
}

func (s *fakeBackfillStore) UpdateListingCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.failOnID {
		return fmt.Errorf("simulated write failure")
	}
	if s.updated == nil {
		s.updated = make(map[uuid.UUID][2]float64)
	}
	s.updated[id] = [2]float64{lat, lng}
	return nil
}

// selectiveGeocoder resolves only the addresses listed in ok.
type selectiveGeocoder struct {
	ok map[string]bool
}

func (g *selectiveGeocoder) Resolve(ctx context.Context, addr models.Address) geo.Result {
	if !g.ok[addr.Street] {
		return geo.Result{}
	}
	return geo.Result{Lat: 33.52, Lng: -101.91, Resolved: true}
}

func pendingListing(street string) *models.Listing {
	return &models.Listing{
		ID:         uuid.New(),
		ListingKey: "L-" + street,
		Address: models.Address{
			Street: street,
			City:   "Lubbock",
			State:  "TX",
			Zip:    "79424",
		},
	}
}

func TestProcessBatch_UpdatesOnlyResolved(t *testing.T) {
	l1 := pendingListing("4312 99th Street")
	l2 := pendingListing("1 Nowhere Lane")

	store := &fakeBackfillStore{pending: []*models.Listing{l1, l2}}
	gc := &selectiveGeocoder{ok: map[string]bool{"4312 99th Street": true}}

	w := NewGeocodeBackfillWorker(store, gc)
	w.processBatch(context.Background(), 10)

	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	coords, ok := store.updated[l1.ID]
	if !ok {
		t.Fatal("resolved listing was not updated")
	}
	if coords[0] != 33.52 || coords[1] != -101.91 {
		t.Fatalf("unexpected coordinates %v", coords)
	}
	if _, ok := store.updated[l2.ID]; ok {
		t.Fatal("unresolved listing must not be updated")
	}
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	store := &fakeBackfillStore{pending: []*models.Listing{
		pendingListing("1 First Street"),
		pendingListing("2 Second Street"),
		pendingListing("3 Third Street"),
	}}
	gc := &selectiveGeocoder{ok: map[string]bool{
		"1 First Street":  true,
		"2 Second Street": true,
		"3 Third Street":  true,
	}}

	w := NewGeocodeBackfillWorker(store, gc)
	w.processBatch(context.Background(), 2)

	if len(store.updated) != 2 {
		t.Fatalf("expected 2 updates for batch size 2, got %d", len(store.updated))
	}
}

func TestProcessBatch_WriteFailureIsIsolated(t *testing.T) {
	l1 := pendingListing("1 First Street")
	l2 := pendingListing("2 Second Street")

	store := &fakeBackfillStore{
		pending:  []*models.Listing{l1, l2},
		failOnID: l1.ID,
	}
	gc := &selectiveGeocoder{ok: map[string]bool{
		"1 First Street":  true,
		"2 Second Street": true,
	}}

	w := NewGeocodeBackfillWorker(store, gc)
	w.processBatch(context.Background(), 10)

	if _, ok := store.updated[l2.ID]; !ok {
		t.Fatal("listing after the failed update was not written")
	}
}

func TestTrigger_CoalescesWithoutBlocking(t *testing.T) {
	w := NewGeocodeBackfillWorker(&fakeBackfillStore{}, &selectiveGeocoder{})

	// Repeated triggers with no consumer must never block.
	for i := 0; i < 5; i++ {
		w.Trigger()
	}

	select {
	case <-w.trigger:
	default:
		t.Fatal("expected a pending trigger")
	}
	select {
	case <-w.trigger:
		t.Fatal("triggers must coalesce into one pending signal")
	default:
	}
}
