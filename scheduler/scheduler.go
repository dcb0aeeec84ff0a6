package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"mls_syncd/config"
	"mls_syncd/models"
)

// ErrAlreadyRunning is returned when a trigger arrives while a run is
// in flight. The trigger is ignored, not queued.
var ErrAlreadyRunning = errors.New("sync already running")

// Runner executes one complete sync run.
type Runner interface {
	Run(ctx context.Context) (*models.SyncRun, error)
}

// CommandQueue is the operational queue an out-of-process CLI writes
// manual-trigger commands to.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	GetLastFinishedRun() (*models.SyncRun, error)
}

// Triggerable allows background workers to be kicked manually.
type Triggerable interface {
	Trigger()
}

// Scheduler drives the run cadence: a periodic timer (interval or cron
// expression) plus manual triggers, all funnelled through a single
// atomic single-flight guard so at most one run is ever in flight.
type Scheduler struct {
	cfg    config.SchedulerConfig
	runner Runner
	queue  CommandQueue
	cron   *cron.Cron
	ticker *time.Ticker

	running  atomic.Bool
	inFlight sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	lastRun  *models.SyncRun
	lastSync time.Time

	backfillWorker Triggerable
}

func New(cfg config.SchedulerConfig, runner Runner, queue CommandQueue) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		queue:  queue,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}

	// Seed the last sync time from the run log so restarts don't report
	// "never synced" until the first run finishes.
	if queue != nil {
		if run, err := queue.GetLastFinishedRun(); err == nil && run != nil && run.FinishedAt != nil {
			s.lastRun = run
			s.lastSync = *run.FinishedAt
		}
	}

	return s
}

// SetWorkers registers background workers for manual triggering.
func (s *Scheduler) SetWorkers(backfill Triggerable) {
	s.backfillWorker = backfill
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.runScheduled(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	log.Printf("Starting scheduler with interval: %s", interval)
	s.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runScheduled(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop cancels the timer and blocks until any in-flight run has
// finished. Idempotent; the run is never aborted, only waited for.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
	})
	s.inFlight.Wait()
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	_, err := s.TriggerManualSync(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		log.Println("Scheduled tick: sync already running, skipping")
		return
	}
	if err != nil {
		log.Printf("Scheduled sync error: %v", err)
	}
}

// TriggerManualSync runs one sync synchronously and returns its
// finalized record. When a run is already in flight it returns
// ErrAlreadyRunning immediately, without any upstream calls or writes.
func (s *Scheduler) TriggerManualSync(ctx context.Context) (*models.SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	s.inFlight.Add(1)
	defer func() {
		s.running.Store(false)
		s.inFlight.Done()
	}()

	run, err := s.runner.Run(ctx)

	if run != nil && run.FinishedAt != nil {
		s.mu.Lock()
		s.lastRun = run
		s.lastSync = *run.FinishedAt
		s.mu.Unlock()
	}

	return run, err
}

// LastSyncTime returns the end time of the most recently finished run,
// zero if nothing has ever completed.
func (s *Scheduler) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// LastRun returns the most recently finished run record, or nil.
func (s *Scheduler) LastRun() *models.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	if s.queue == nil {
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.queue.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				s.handleCommand(ctx, &cmd)
				if err := s.queue.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) {
	switch cmd.Command {
	case models.CmdSyncNow:
		if _, err := s.TriggerManualSync(ctx); err != nil {
			log.Printf("Command sync_now: %v", err)
		}
	case models.CmdGeocodeNow:
		if s.backfillWorker != nil {
			s.backfillWorker.Trigger()
			log.Println("Geocode backfill triggered via command")
		}
	default:
		log.Printf("Unknown command: %s", cmd.Command)
	}
}
