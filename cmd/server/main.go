/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing consumption engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the engine (resolver, aggregator, calculator, syncer)
  4. Configure HTTP router and sync scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080)
  -db             SQLite database path (default: billing.db)
                  Use ":memory:" for in-memory database
  -tracker-url    Issue tracker base URL (empty disables sync)
  -tracker-token  Issue tracker API token
  -timelog-url    Time-logging service base URL
  -timelog-token  Time-logging API token
  -sync-secret    Shared secret for sync trigger endpoints
  -sync-interval  Scheduler interval (default: 6h; 0 disables)
  -sync-workers   Concurrent work-package syncs (default: 4)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database, no external sync
  ./server -db="./data/billing.db"

  # Full setup with collaborators and scheduler
  ./server -tracker-url=https://tracker.example.com \
           -timelog-url=https://timelog.example.com \
           -sync-secret=$SYNC_SECRET

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/ingest"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "billing.db", "SQLite database path")
	trackerURL := flag.String("tracker-url", "", "issue tracker base URL")
	trackerToken := flag.String("tracker-token", "", "issue tracker API token")
	timelogURL := flag.String("timelog-url", "", "time-logging service base URL")
	timelogToken := flag.String("timelog-token", "", "time-logging API token")
	syncSecret := flag.String("sync-secret", "", "shared secret for sync endpoints")
	syncInterval := flag.Duration("sync-interval", 6*time.Hour, "scheduler interval (0 disables)")
	syncWorkers := flag.Int("sync-workers", 4, "concurrent work-package syncs")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Engine wiring
	resolver := &ledger.Resolver{Config: store}
	aggregator := &ledger.Aggregator{
		Worklogs: store,
		Metrics:  store,
		Resolver: resolver,
	}
	strategies := ledger.NewStrategyRegistry(
		ledger.ForfeitStrategy{},
		ledger.FlagForBillingStrategy{Store: store},
		ledger.CarryOverStrategy{Store: store},
	)
	calculator := &ledger.Calculator{
		Metrics:         store,
		Regularizations: store,
		Strategies:      strategies,
	}
	regularizations := &ledger.RegularizationLedger{Store: store}
	classifier := &billing.Classifier{Tickets: store, Worklogs: store}

	// Sync pipeline. Without collaborator URLs the sync endpoints and
	// scheduler stay off; configuration and reporting still work.
	var syncer *ingest.Syncer
	if *trackerURL != "" && *timelogURL != "" {
		syncer = &ingest.Syncer{
			Tracker:     ingest.NewHTTPTracker(*trackerURL, *trackerToken),
			TimeLog:     ingest.NewHTTPTimeLog(*timelogURL, *timelogToken),
			Store:       store,
			Normalizer:  &ingest.Normalizer{},
			Aggregator:  aggregator,
			Calculator:  calculator,
			Resolver:    resolver,
			Concurrency: *syncWorkers,
		}
	} else {
		log.Println("Collaborator URLs not set; sync disabled")
	}

	handler := &api.Handler{
		Store:           store,
		Syncer:          syncer,
		Regularizations: regularizations,
		Calculator:      calculator,
		Classifier:      classifier,
		Resolver:        resolver,
		SyncSecret:      *syncSecret,
	}

	router := api.NewRouter(handler)

	// Scheduler
	var scheduler *api.SyncScheduler
	if syncer != nil && *syncInterval > 0 {
		scheduler = api.NewSyncScheduler(syncer)
		scheduler.Interval = *syncInterval
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
