/*
sync.go - Per-work-package ingestion pipeline

PURPOSE:
  Runs the full sync for one work package and date window:

    fetch raw worklogs + issue metadata
      -> normalize (UTC bucketing, classification)
      -> replace worklog months (delete-then-insert)
      -> aggregate affected months (corrected hours -> MonthlyMetric)
      -> recompute consumption for affected validity periods
      -> refresh ticket metadata for the T&M classifier

  The pipeline is strictly ordered within a work package. Across work
  packages, syncs are independent: SyncAll runs them with bounded
  parallelism and isolates failures per work package.

IDEMPOTENCE:
  Re-running with identical external data reproduces identical
  WorklogEntry and MonthlyMetric state. Every month bucket in the
  window is replaced - including buckets the new data leaves empty.

CANCELLATION:
  A persisted stop flag is checked between work packages (coarse-
  grained); an in-flight per-work-package pipeline always finishes.

SEE ALSO:
  - api/scheduler.go: Periodic trigger
  - ledger/aggregate.go, ledger/consumption.go: The downstream stages
*/
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// SYNC STORE - The slice of persistence the pipeline writes
// =============================================================================

// SyncStore bundles the store interfaces the pipeline needs.
type SyncStore interface {
	ledger.ConfigStore
	ledger.WorklogStore
	ledger.TicketStore
	ledger.SyncRunStore
}

// =============================================================================
// SYNCER
// =============================================================================

// Syncer drives the ingestion pipeline.
type Syncer struct {
	Tracker TrackerClient
	TimeLog TimeLogClient

	Store      SyncStore
	Normalizer *Normalizer
	Aggregator *ledger.Aggregator
	Calculator *ledger.Calculator
	Resolver   *ledger.Resolver

	// Concurrency caps simultaneous work-package syncs in SyncAll to
	// respect external API rate limits. Zero means 1.
	Concurrency int

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (s *Syncer) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Window is the date range of one sync.
type Window struct {
	From ledger.Date
	To   ledger.Date
}

func (w Window) validate() error {
	if w.To.Before(w.From) {
		return ledger.ErrInvalidWindow
	}
	return nil
}

// =============================================================================
// SINGLE WORK PACKAGE
// =============================================================================

// SyncWorkPackage runs the full pipeline for one work package. The run
// record captures success or the failure reason; previously synced
// months are untouched by a failed attempt because every write happens
// after all fetches succeed.
func (s *Syncer) SyncWorkPackage(ctx context.Context, wpID ledger.WorkPackageID, window Window) (ledger.SyncRun, error) {
	run := ledger.SyncRun{
		ID:            uuid.NewString(),
		WorkPackageID: wpID,
		WindowStart:   window.From,
		WindowEnd:     window.To,
		Status:        ledger.SyncRunning,
		StartedAt:     time.Now().UTC(),
	}

	if err := window.validate(); err != nil {
		return s.fail(ctx, run, err)
	}

	wp, err := s.Store.GetWorkPackage(ctx, wpID)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	if wp == nil {
		return s.fail(ctx, run, ledger.ErrWorkPackageNotFound)
	}

	if err := s.Store.SaveSyncRun(ctx, run); err != nil {
		return run, err
	}

	entries, err := s.ingest(ctx, *wp, window)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.EntriesSynced = len(entries)

	if err := s.aggregate(ctx, *wp, window); err != nil {
		return s.fail(ctx, run, err)
	}

	if err := s.recalculate(ctx, *wp, window); err != nil {
		return s.fail(ctx, run, err)
	}

	if wp.IncludeEvolutiveTM {
		if err := s.refreshTickets(ctx, *wp, window); err != nil {
			return s.fail(ctx, run, err)
		}
	}

	now := time.Now().UTC()
	run.Status = ledger.SyncCompleted
	run.CompletedAt = &now
	if err := s.Store.SaveSyncRun(ctx, run); err != nil {
		return run, err
	}

	s.logf("[Sync] %s: %d entries over %s..%s", wpID, run.EntriesSynced, window.From, window.To)
	return run, nil
}

// ingest fetches, normalizes, and replaces worklog months. All fetches
// complete before the first write so a collaborator failure cannot leave
// a half-replaced window.
func (s *Syncer) ingest(ctx context.Context, wp ledger.WorkPackage, window Window) ([]ledger.WorklogEntry, error) {
	raws, err := s.TimeLog.Worklogs(ctx, wp.AccountKey, window.From.Time, window.To.AddDays(1).Time)
	if err != nil {
		return nil, fmt.Errorf("time-logging fetch for %s: %w", wp.ID, err)
	}

	issues := map[string]IssueMeta{}
	if keys := IssueKeys(raws); len(keys) > 0 {
		issues, err = s.Tracker.IssuesByKeys(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("tracker fetch for %s: %w", wp.ID, err)
		}
	}

	entries := s.Normalizer.Normalize(wp, raws, issues)
	grouped := GroupByMonth(entries)

	// Replace every bucket the window covers, not just the non-empty
	// ones: a re-sync that drops a month's entries must clear that month.
	for _, month := range ledger.MonthsBetween(window.From, window.To) {
		if err := s.Store.ReplaceMonth(ctx, wp.ID, month, grouped[month]); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

func (s *Syncer) aggregate(ctx context.Context, wp ledger.WorkPackage, window Window) error {
	_, err := s.Aggregator.AggregateRange(ctx, wp, window.From, window.To)
	return err
}

// recalculate recomputes consumption for every validity period the
// window touches.
func (s *Syncer) recalculate(ctx context.Context, wp ledger.WorkPackage, window Window) error {
	periods, err := s.Store.ListPeriods(ctx, wp.ID)
	if err != nil {
		return err
	}
	for _, period := range periods {
		if period.End.Before(window.From) || period.Start.After(window.To) {
			continue
		}
		if _, err := s.Calculator.ComputePeriodConsumption(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) refreshTickets(ctx context.Context, wp ledger.WorkPackage, window Window) error {
	issues, err := s.Tracker.SearchIssues(ctx, IssueFilter{
		WorkPackageID: wp.ID,
		IssueTypes:    []string{ledger.IssueTypeEvolutivo, ledger.IssueTypeHitosEvolutivo},
	})
	if err != nil {
		return fmt.Errorf("ticket refresh for %s: %w", wp.ID, err)
	}

	tickets := make([]ledger.Ticket, 0, len(issues))
	for _, meta := range issues {
		tickets = append(tickets, ledger.Ticket{
			Key:           meta.Key,
			WorkPackageID: wp.ID,
			IssueType:     meta.IssueType,
			BillingMode:   meta.BillingMode,
			CreatedDate:   ledger.DateOf(meta.Created),
			Status:        meta.Status,
			EstimateHours: meta.EstimateHours,
		})
	}
	return s.Store.UpsertTickets(ctx, tickets)
}

func (s *Syncer) fail(ctx context.Context, run ledger.SyncRun, cause error) (ledger.SyncRun, error) {
	now := time.Now().UTC()
	run.Status = ledger.SyncFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	if saveErr := s.Store.SaveSyncRun(ctx, run); saveErr != nil {
		s.logf("[Sync] %s: failed to persist run record: %v", run.WorkPackageID, saveErr)
	}
	s.logf("[Sync] %s: failed: %v", run.WorkPackageID, cause)
	return run, cause
}

// =============================================================================
// BATCH SYNC - All work packages, bounded parallelism
// =============================================================================

// BatchResult summarizes one SyncAll invocation.
type BatchResult struct {
	Runs    []ledger.SyncRun
	Stopped bool
	Failed  int
}

// SyncAll syncs every work package over the window. Work packages run
// concurrently up to the configured limit; one failure never aborts the
// others. The persisted stop flag is checked before each dispatch.
func (s *Syncer) SyncAll(ctx context.Context, window Window) (BatchResult, error) {
	var result BatchResult

	if err := window.validate(); err != nil {
		return result, err
	}

	workPackages, err := s.Store.ListWorkPackages(ctx)
	if err != nil {
		return result, err
	}

	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		sem  = make(chan struct{}, limit)
		runs = make([]ledger.SyncRun, 0, len(workPackages))
	)

	dispatched := 0
	for _, wp := range workPackages {
		stopped, err := s.Store.IsSyncStopped(ctx)
		if err != nil {
			s.logf("[Sync] stop-flag check failed: %v", err)
		} else if stopped {
			result.Stopped = true
			s.logf("[Sync] batch stopped by flag after %d dispatches", dispatched)
			break
		}
		dispatched++

		wg.Add(1)
		sem <- struct{}{}
		go func(wpID ledger.WorkPackageID) {
			defer wg.Done()
			defer func() { <-sem }()

			run, err := s.SyncWorkPackage(ctx, wpID, window)
			mu.Lock()
			runs = append(runs, run)
			if err != nil {
				result.Failed++
			}
			mu.Unlock()
		}(wp.ID)
	}

	wg.Wait()
	result.Runs = runs
	return result, nil
}
