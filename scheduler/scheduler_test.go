package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mls_syncd/config"
	"mls_syncd/models"
)

// slowRunner blocks until released so overlap can be provoked
// deterministically.
type slowRunner struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func newSlowRunner() *slowRunner {
	return &slowRunner{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (r *slowRunner) Run(ctx context.Context) (*models.SyncRun, error) {
	r.runs.Add(1)
	r.started <- struct{}{}
	<-r.release

	now := time.Now()
	return &models.SyncRun{
		ID:         int64(r.runs.Load()),
		Outcome:    models.RunOutcomeSucceeded,
		FinishedAt: &now,
	}, nil
}

type fakeQueue struct {
	lastRun *models.SyncRun
}

func (q *fakeQueue) GetPendingCommands() ([]models.Command, error) { return nil, nil }
func (q *fakeQueue) MarkCommandProcessed(id int64) error           { return nil }
func (q *fakeQueue) GetLastFinishedRun() (*models.SyncRun, error)  { return q.lastRun, nil }

func TestTriggerManualSync_RejectsOverlap(t *testing.T) {
	runner := newSlowRunner()
	s := New(config.SchedulerConfig{}, runner, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.TriggerManualSync(context.Background()); err != nil {
			t.Errorf("first sync failed: %v", err)
		}
	}()

	<-runner.started

	if _, err := s.TriggerManualSync(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning while a run is in flight, got %v", err)
	}

	close(runner.release)
	wg.Wait()

	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}

	// The guard must clear once the run finishes.
	runner.release = make(chan struct{})
	close(runner.release)
	go func() { <-runner.started }()
	if _, err := s.TriggerManualSync(context.Background()); err != nil {
		t.Fatalf("sync after completion failed: %v", err)
	}
}

func TestTriggerManualSync_RecordsLastRun(t *testing.T) {
	runner := newSlowRunner()
	close(runner.release)
	go func() {
		for range runner.started {
		}
	}()

	s := New(config.SchedulerConfig{}, runner, nil)
	if !s.LastSyncTime().IsZero() {
		t.Fatal("fresh scheduler must report zero last sync time")
	}

	run, err := s.TriggerManualSync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if got := s.LastRun(); got == nil || got.ID != run.ID {
		t.Fatalf("last run not recorded, got %+v", got)
	}
	if !s.LastSyncTime().Equal(*run.FinishedAt) {
		t.Fatalf("last sync time %v, want %v", s.LastSyncTime(), *run.FinishedAt)
	}
}

func TestNew_SeedsLastSyncFromRunLog(t *testing.T) {
	finished := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	queue := &fakeQueue{lastRun: &models.SyncRun{
		ID:         7,
		Outcome:    models.RunOutcomeSucceeded,
		FinishedAt: &finished,
	}}

	s := New(config.SchedulerConfig{}, newSlowRunner(), queue)

	if !s.LastSyncTime().Equal(finished) {
		t.Fatalf("last sync time %v, want %v", s.LastSyncTime(), finished)
	}
	if got := s.LastRun(); got == nil || got.ID != 7 {
		t.Fatalf("last run not seeded, got %+v", got)
	}
}

func TestStop_WaitsForInFlightRun(t *testing.T) {
	runner := newSlowRunner()
	s := New(config.SchedulerConfig{Interval: time.Hour}, runner, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	go s.TriggerManualSync(context.Background())
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	s := New(config.SchedulerConfig{Interval: time.Hour}, newSlowRunner(), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.Stop()
	s.Stop()
}

func TestStart_RejectsInvalidCron(t *testing.T) {
	s := New(config.SchedulerConfig{Cron: "not a cron expression"}, newSlowRunner(), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
