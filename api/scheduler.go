/*
scheduler.go - Automated sync scheduler

PURPOSE:
  Periodically runs the full ingestion pipeline over every work package
  so consumption figures stay current without manual triggers.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Each tick syncs the trailing window (default: last 3 months)
  - The persisted stop flag halts dispatch between work packages
  - Per-work-package failures are isolated; the batch always completes

CONFIGURATION:
  - Interval: How often to sync (default: 6 hours)
  - WindowMonths: Trailing months per sync (default: 3)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSyncScheduler(syncer)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSyncAll endpoint (manual trigger)
  - ingest/sync.go: The pipeline itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/billing-engine/ingest"
	"github.com/warp/billing-engine/ledger"
)

// SyncScheduler drives periodic batch syncs.
type SyncScheduler struct {
	Syncer       *ingest.Syncer
	Interval     time.Duration
	WindowMonths int
	Enabled      bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSyncScheduler creates a scheduler with default settings.
func NewSyncScheduler(syncer *ingest.Syncer) *SyncScheduler {
	return &SyncScheduler{
		Syncer:       syncer,
		Interval:     6 * time.Hour,
		WindowMonths: 3,
		Enabled:      true,
		stop:         make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SyncScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with interval: %v", ss.Interval)
}

// Stop stops the scheduler.
func (ss *SyncScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SyncScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.syncAll()

	for {
		select {
		case <-ss.ticker.C:
			ss.syncAll()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SyncScheduler) syncAll() {
	ctx := context.Background()
	to := ledger.Today()
	from := to.AddMonths(-ss.WindowMonths)

	log.Printf("[Scheduler] Syncing all work packages over %s..%s", from, to)

	result, err := ss.Syncer.SyncAll(ctx, ingest.Window{From: from, To: to})
	if err != nil {
		log.Printf("[Scheduler] Batch sync error: %v", err)
		return
	}

	if result.Stopped {
		log.Printf("[Scheduler] Batch stopped by flag after %d runs", len(result.Runs))
	}
	if result.Failed > 0 {
		log.Printf("[Scheduler] Completed with %d of %d work packages failed",
			result.Failed, len(result.Runs))
	} else {
		log.Printf("[Scheduler] Completed: %d work packages synced", len(result.Runs))
	}
}

// RunNow triggers an immediate sync (for testing/admin).
func (ss *SyncScheduler) RunNow() {
	ss.syncAll()
}
