package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"mls_syncd/mls"
	"mls_syncd/models"
	"mls_syncd/services"
	"mls_syncd/storage"
)

// RunLog records sync run metadata.
type RunLog interface {
	CreateRun(run *models.SyncRun) (int64, error)
	UpdateRun(run *models.SyncRun) error
}

// Orchestrator owns one sync run: fetch, normalize, enrich, reconcile,
// notify. Only an auth or fetch failure aborts a run early; every other
// error is tallied and processing continues with the next record.
type Orchestrator struct {
	client     *mls.Client
	reconciler *services.Reconciler
	runLog     RunLog
	archiver   *storage.Archiver // nil disables raw payload archival
	nowFn      func() time.Time
}

func NewOrchestrator(client *mls.Client, reconciler *services.Reconciler, runLog RunLog) *Orchestrator {
	return &Orchestrator{
		client:     client,
		reconciler: reconciler,
		runLog:     runLog,
		nowFn:      time.Now,
	}
}

// SetArchiver enables raw payload snapshots for each run.
func (o *Orchestrator) SetArchiver(a *storage.Archiver) {
	o.archiver = a
}

// SetNowFunc overrides the clock, for tests.
func (o *Orchestrator) SetNowFunc(fn func() time.Time) {
	o.nowFn = fn
}

// Run executes one full sync and returns the finalized run record. The
// returned error is non-nil only for run-fatal failures (auth, fetch);
// the run record always comes back finalized either way.
func (o *Orchestrator) Run(ctx context.Context) (*models.SyncRun, error) {
	run := &models.SyncRun{
		StartedAt: o.nowFn(),
		Outcome:   models.RunOutcomeRunning,
	}

	runID, err := o.runLog.CreateRun(run)
	if err != nil {
		log.Printf("Warning: failed to record run start: %v", err)
	}
	run.ID = runID

	log.Printf("Sync run %d starting", run.ID)

	if err := o.execute(ctx, run); err != nil {
		run.Outcome = models.RunOutcomeFailed
		run.Error = err.Error()
		o.finalize(run)
		log.Printf("Sync run %d failed: %v", run.ID, err)
		return run, err
	}

	if run.ErrorsCount > 0 {
		run.Outcome = models.RunOutcomePartial
	} else {
		run.Outcome = models.RunOutcomeSucceeded
	}
	o.finalize(run)

	log.Printf("Sync run %d %s: %d agents, %d listings created, %d updated, %d skipped, %d enriched, %d errors (%s)",
		run.ID, run.Outcome, run.AgentsUpserted, run.ListingsCreated, run.ListingsUpdated,
		run.ListingsSkipped, run.ListingsEnriched, run.ErrorsCount, run.Duration().Round(time.Millisecond))

	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *models.SyncRun) error {
	// Fetch. Either feed failing is fatal to the run; the next scheduled
	// tick is the retry policy.
	listings, err := o.client.FetchPendingListings(ctx)
	if err != nil {
		return err
	}

	agents, err := o.client.FetchActiveAgents(ctx)
	if err != nil {
		return err
	}

	o.archive(ctx, run.ID, mls.FeedPendingListings, listings.Records)
	o.archive(ctx, run.ID, mls.FeedActiveAgents, agents.Records)

	// Normalize. Malformed records are dropped and tallied, never fatal.
	canonicalAgents := make([]*models.Agent, 0, len(agents.Records))
	for i := range agents.Records {
		if a := mls.NormalizeAgent(&agents.Records[i]); a != nil {
			canonicalAgents = append(canonicalAgents, a)
		} else {
			run.ErrorsCount++
		}
	}

	canonicalListings := make([]*models.Listing, 0, len(listings.Records))
	for i := range listings.Records {
		if l := mls.NormalizeListing(&listings.Records[i]); l != nil {
			canonicalListings = append(canonicalListings, l)
		} else {
			log.Printf("Warning: dropping malformed listing record (missing key or status)")
			run.ListingsSkipped++
			run.ErrorsCount++
		}
	}
	run.ListingsSkipped += listings.Malformed
	run.ErrorsCount += listings.Malformed + agents.Malformed

	// Reconcile agents first so listing notifications can see fresh
	// agent contact data.
	agentResult := o.reconciler.UpsertAgents(ctx, canonicalAgents)
	run.AgentsUpserted = agentResult.Upserted
	run.ErrorsCount += agentResult.Failed

	listingResult := o.reconciler.UpsertListings(ctx, canonicalListings)
	run.ListingsCreated = listingResult.Created
	run.ListingsUpdated = listingResult.Updated
	run.ListingsEnriched = listingResult.Enriched
	run.ErrorsCount += listingResult.Failed

	return nil
}

func (o *Orchestrator) archive(ctx context.Context, runID int64, feedID string, records any) {
	if o.archiver == nil {
		return
	}
	payload, err := json.Marshal(records)
	if err != nil {
		log.Printf("Warning: marshal %s archive payload: %v", feedID, err)
		return
	}
	if err := o.archiver.ArchiveFeed(ctx, runID, feedID, payload); err != nil {
		log.Printf("Warning: %v", err)
	}
}

func (o *Orchestrator) finalize(run *models.SyncRun) {
	now := o.nowFn()
	run.FinishedAt = &now
	if err := o.runLog.UpdateRun(run); err != nil {
		log.Printf("Warning: failed to record run %d outcome: %v", run.ID, err)
	}
}

// IsRunFatal reports whether err belongs to the taxonomy that aborts a
// run before any records are processed.
func IsRunFatal(err error) bool {
	var authErr *mls.AuthError
	var upstreamErr *mls.UpstreamError
	return errors.As(err, &authErr) || errors.As(err, &upstreamErr)
}
