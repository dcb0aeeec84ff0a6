package models

import "time"

type RunOutcome string

const (
	RunOutcomeRunning   RunOutcome = "running"
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomeFailed    RunOutcome = "failed"
	RunOutcomePartial   RunOutcome = "partially_failed"
)

// SyncRun is the metadata for one full pipeline execution. The most
// recent finished run's end time is the externally visible last sync
// time.
type SyncRun struct {
	ID               int64      `json:"id" db:"id"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Outcome          RunOutcome `json:"outcome" db:"outcome"`
	AgentsUpserted   int        `json:"agents_upserted" db:"agents_upserted"`
	ListingsCreated  int        `json:"listings_created" db:"listings_created"`
	ListingsUpdated  int        `json:"listings_updated" db:"listings_updated"`
	ListingsSkipped  int        `json:"listings_skipped" db:"listings_skipped"`
	ListingsEnriched int        `json:"listings_enriched" db:"listings_enriched"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
	Error            string     `json:"error,omitempty" db:"error"`
}

// Duration returns the run's wall time, or zero while still running.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
