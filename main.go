package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mls_syncd/config"
	"mls_syncd/geo"
	"mls_syncd/httputil"
	"mls_syncd/logging"
	"mls_syncd/mls"
	"mls_syncd/models"
	"mls_syncd/pipeline"
	"mls_syncd/scheduler"
	"mls_syncd/services"
	"mls_syncd/storage"
	"mls_syncd/workers"
)

var (
	syncNow    = flag.Bool("sync", false, "Run one sync and exit")
	triggerCmd = flag.Bool("trigger", false, "Ask a running daemon to sync now, then exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting mls_syncd...")
	log.Printf("Loaded %d feed configs", len(cfg.Feeds))
	for id, feed := range cfg.Feeds {
		log.Printf("  - %s (%s)", id, feed.Resource)
	}

	runLog, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open run log: %v", err)
	}
	defer runLog.Close()
	log.Printf("Run log database: %s", cfg.DBPath)

	// Trigger mode only needs the command queue.
	if *triggerCmd {
		if err := runLog.EnqueueCommand(models.CmdSyncNow); err != nil {
			log.Fatalf("Failed to enqueue command: %v", err)
		}
		log.Println("Sync requested")
		return
	}

	ctx := context.Background()

	store, err := storage.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer store.Close()
	log.Println("Connected to Postgres")

	clients := httputil.NewClients()

	broker := mls.NewCredentialBroker(cfg.MLS, clients.Upstream)
	client := mls.NewClient(cfg.MLS, cfg.Feeds, broker, clients.Upstream)
	geocoder := geo.NewGeocoder(cfg.Geocode, clients.Geo)
	notifier := services.NewNotifier(cfg.Webhook, clients.Webhook)
	if !notifier.Enabled() {
		log.Println("No webhook URL configured, status-change notifications disabled")
	}

	reconciler := services.NewReconciler(store, geocoder, notifier)
	orchestrator := pipeline.NewOrchestrator(client, reconciler, runLog)

	if cfg.Archive.Bucket != "" {
		archiver, err := storage.NewArchiver(ctx, cfg.Archive)
		if err != nil {
			log.Printf("Warning: raw payload archival disabled: %v", err)
		} else {
			orchestrator.SetArchiver(archiver)
			log.Printf("Archiving raw payloads to bucket %s", cfg.Archive.Bucket)
		}
	}

	if *syncNow {
		log.Println("Running sync...")
		run, err := orchestrator.Run(ctx)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Printf("Sync complete: %s", run.Outcome)
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg.Scheduler, orchestrator, runLog)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	backfillWorker := workers.NewGeocodeBackfillWorker(store, geocoder)
	go backfillWorker.Run(ctx, 25, 30*time.Minute)
	sched.SetWorkers(backfillWorker)
	log.Println("Geocode backfill worker started")

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}
