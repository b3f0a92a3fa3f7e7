// Command scribe-server runs the Scribe cataloging service: the routing
// engine, the session archiver, and the ops HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carverlabs/scribe/internal/archive"
	"github.com/carverlabs/scribe/internal/config"
	"github.com/carverlabs/scribe/internal/connections"
	"github.com/carverlabs/scribe/internal/engine"
	"github.com/carverlabs/scribe/internal/notify"
	"github.com/carverlabs/scribe/internal/retention"
	"github.com/carverlabs/scribe/internal/server"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
	"github.com/carverlabs/scribe/web/handlers"
)

func main() {
	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	policy, err := config.LoadRetentionPolicy(cfg.Retention.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to load retention policy: %v", err)
	}

	// Initialize storage
	dbCfg := cfg.DatabaseConfig()
	store := connections.MustOpen(dbCfg)
	defer store.Close()
	log.Printf("Storage: %s", connections.Describe(dbCfg))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the pipeline: taxonomy lookups, the routing engine, the session
	// archiver, and the retention manager.
	projects := taxonomy.NewService(store, taxonomy.DefaultCacheTTL)

	eng, err := engine.NewEngine(store, projects, engine.RouterConfig{
		BatchSize:    cfg.Pipeline.RouteBatchSize,
		Interval:     cfg.Pipeline.RouteInterval,
		CycleTimeout: cfg.Pipeline.CycleTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create routing engine: %v", err)
	}

	archiver, err := archive.NewArchiver(store, archive.Config{
		BatchSize:    cfg.Archive.BatchSize,
		Interval:     cfg.Archive.Interval,
		CleanDwell:   cfg.Archive.CleanDwell,
		ArchiveDwell: cfg.Archive.ArchiveDwell,
	})
	if err != nil {
		log.Fatalf("Failed to create archiver: %v", err)
	}

	manager, err := retention.NewManager(store, policy)
	if err != nil {
		log.Fatalf("Failed to create retention manager: %v", err)
	}

	// Start server
	addr, wsHub := server.Start(ctx, cfg, store, eng, archiver, manager)
	log.Printf("Scribe API listening at http://%s", addr)

	// Push cycle reports to websocket subscribers. Registered before the
	// loops start so the startup cycles are broadcast too.
	eng.SetOnCycleComplete(func(report *engine.RouteReport) {
		wsHub.BroadcastEvent(handlers.EventRouteCycle, report)
	})
	archiver.SetOnCycleComplete(func(report *archive.Report) {
		wsHub.BroadcastEvent(handlers.EventArchiveCycle, report)
	})

	// Start the routing loop
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start routing engine: %v", err)
	}

	// Start the archive loop
	go func() {
		if err := archiver.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Archiver stopped: %v", err)
		}
	}()

	// Watch for ingest event files when a directory is configured. Events
	// nudge the engine so fresh extractions route without waiting out the
	// interval.
	var watcher *notify.EventWatcher
	if cfg.Watch.EventDir != "" {
		watcher = notify.NewEventWatcher(cfg.Watch.EventDir, func(eventType, stagingID string) {
			eng.Kick()
		})
		if err := watcher.Start(); err != nil {
			log.Printf("WARNING: event watcher failed to start: %v", err)
			watcher = nil
		}
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	if watcher != nil {
		watcher.Stop()
	}

	if err := archiver.Stop(); err != nil {
		log.Printf("Error stopping archiver: %v", err)
	}

	// Let an in-flight routing cycle finish before the store closes
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down routing engine: %v", err)
	}

	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// startServer is a helper that wraps server.Start for testability.
// It accepts the storage.Store interface so tests can pass in any implementation.
func startServer(ctx context.Context, cfg *config.Config, store storage.Store, eng *engine.Engine, archiver *archive.Archiver, manager *retention.Manager) string {
	addr, _ := server.Start(ctx, cfg, store, eng, archiver, manager)
	return addr
}
