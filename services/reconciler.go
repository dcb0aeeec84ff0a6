package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"mls_syncd/geo"
	"mls_syncd/models"
)

// Store is the persistence surface the reconciler needs. Upserts are
// keyed on natural keys (member key, listing key); lookups return nil
// for absence.
type Store interface {
	GetAgentByMemberKey(ctx context.Context, memberKey string) (*models.Agent, error)
	UpsertAgent(ctx context.Context, agent *models.Agent) error
	GetListingByKey(ctx context.Context, listingKey string) (*models.Listing, error)
	UpsertListing(ctx context.Context, listing *models.Listing) error
}

// Geocoder resolves a street address to coordinates, or an explicit
// unresolved result.
type Geocoder interface {
	Resolve(ctx context.Context, addr models.Address) geo.Result
}

// Reconciler idempotently upserts canonical records into the store.
// One record's failure is tallied and skipped, never allowed to abort
// sibling records in the same batch.
type Reconciler struct {
	store    Store
	geo      Geocoder
	notifier *Notifier
	nowFn    func() time.Time
}

func NewReconciler(store Store, geocoder Geocoder, notifier *Notifier) *Reconciler {
	return &Reconciler{
		store:    store,
		geo:      geocoder,
		notifier: notifier,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (r *Reconciler) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}

// AgentResult tallies one agent batch.
type AgentResult struct {
	Upserted int
	Failed   int
}

// ListingResult tallies one listing batch.
type ListingResult struct {
	Created     int
	Updated     int
	Failed      int
	Enriched    int
	Transitions int
}

// UpsertAgents replaces each agent's contact fields in place, keyed on
// member key. No history is kept for agents.
func (r *Reconciler) UpsertAgents(ctx context.Context, agents []*models.Agent) AgentResult {
	var result AgentResult
	now := r.nowFn()

	for _, agent := range agents {
		existing, err := r.store.GetAgentByMemberKey(ctx, agent.MemberKey)
		if err != nil {
			log.Printf("Warning: lookup agent %s: %v", agent.MemberKey, err)
			result.Failed++
			continue
		}

		if existing != nil {
			agent.ID = existing.ID
			agent.CreatedAt = existing.CreatedAt
		} else {
			agent.ID = uuid.New()
			agent.CreatedAt = now
		}
		agent.LastSyncedAt = now
		agent.UpdatedAt = now

		if err := r.store.UpsertAgent(ctx, agent); err != nil {
			log.Printf("Warning: upsert agent %s: %v", agent.MemberKey, err)
			result.Failed++
			continue
		}
		result.Upserted++
	}

	return result
}

// UpsertListings reconciles each listing against the stored record:
// enriches missing coordinates, appends a status-history entry only on
// an observed transition, then writes via natural-key upsert. Safe to
// repeat with the same input.
func (r *Reconciler) UpsertListings(ctx context.Context, listings []*models.Listing) ListingResult {
	var result ListingResult

	for _, listing := range listings {
		if err := r.reconcileListing(ctx, listing, &result); err != nil {
			log.Printf("Warning: reconcile listing %s: %v", listing.ListingKey, err)
			result.Failed++
		}
	}

	return result
}

func (r *Reconciler) reconcileListing(ctx context.Context, listing *models.Listing, result *ListingResult) error {
	existing, err := r.store.GetListingByKey(ctx, listing.ListingKey)
	if err != nil {
		return err
	}

	// Carry forward coordinates already resolved on a previous run so an
	// unchanged address is never geocoded twice.
	if existing != nil && !listing.Address.HasCoordinates() && existing.Address.HasCoordinates() {
		lat, lng := *existing.Address.Lat, *existing.Address.Lng
		listing.Address.Lat = &lat
		listing.Address.Lng = &lng
	}

	if listing.Address.Complete() && !listing.Address.HasCoordinates() {
		if res := r.geo.Resolve(ctx, listing.Address); res.Resolved {
			listing.Address.Lat = &res.Lat
			listing.Address.Lng = &res.Lng
			result.Enriched++
		}
	}

	now := r.nowFn()
	transition := false

	if existing == nil {
		listing.ID = uuid.New()
		listing.CreatedAt = now
		listing.StatusHistory = []models.StatusEntry{{Status: listing.Status, Timestamp: now}}
	} else {
		listing.ID = existing.ID
		listing.CreatedAt = existing.CreatedAt
		if existing.Status != listing.Status {
			history := make([]models.StatusEntry, len(existing.StatusHistory), len(existing.StatusHistory)+1)
			copy(history, existing.StatusHistory)
			listing.StatusHistory = append(history, models.StatusEntry{Status: listing.Status, Timestamp: now})
			transition = true
		} else {
			listing.StatusHistory = existing.StatusHistory
		}
	}
	listing.LastSyncedAt = now
	listing.UpdatedAt = now

	if err := r.store.UpsertListing(ctx, listing); err != nil {
		return err
	}

	if existing == nil {
		result.Created++
	} else {
		result.Updated++
	}

	// Notify only on a transition between two stored states, after the
	// write has committed. Creation seeds history but stays quiet.
	if transition {
		result.Transitions++
		if r.notifier != nil {
			agent := r.agentForListing(ctx, listing)
			r.notifier.NotifyStatusChange(ctx, listing, agent)
		}
	}

	return nil
}

func (r *Reconciler) agentForListing(ctx context.Context, listing *models.Listing) *models.Agent {
	if listing.ListAgentKey == "" {
		return nil
	}
	agent, err := r.store.GetAgentByMemberKey(ctx, listing.ListAgentKey)
	if err != nil {
		log.Printf("Warning: lookup agent %s for notification: %v", listing.ListAgentKey, err)
		return nil
	}
	return agent
}
