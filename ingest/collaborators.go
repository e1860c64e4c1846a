/*
Package ingest pulls raw worked-time records from the external issue
tracker and time-logging service, normalizes them into worklog entries,
and drives the per-work-package sync pipeline.

PURPOSE:
  The engine (ledger package) is pure; this package owns the I/O
  boundary. Raw entries arrive from two collaborators, get bucketed and
  classified by the normalizer, and are written through the replace-by-
  month discipline so re-syncs are idempotent.

COLLABORATORS (this file):
  TrackerClient: Issue metadata (type, billing mode, status, estimate)
  TimeLogClient: Reported time entries for an account key + date range

  Both are consumed through small query interfaces; pagination, auth,
  and retries live behind the implementations, outside this repo's
  scope.

SEE ALSO:
  - normalizer.go: Raw entries -> ledger.WorklogEntry
  - sync.go: The full ingestion -> aggregation -> consumption pipeline
*/
package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// RAW TYPES - What the collaborators hand us
// =============================================================================

// RawWorklog is one reported time entry from the time-logging service.
type RawWorklog struct {
	// ID is the entry's identifier in the source system; it becomes the
	// worklog's natural key.
	ID       string
	IssueKey string
	Author   string

	// Started is the entry's effective timestamp, as reported. May carry
	// any zone offset; bucketing always happens in UTC.
	Started time.Time

	Seconds int

	// ManualTag is set for hand-imputed entries.
	ManualTag string
}

// Hours converts the reported seconds to decimal hours.
func (w RawWorklog) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(w.Seconds)).Div(decimal.NewFromInt(3600))
}

// IssueMeta is the tracker metadata the engine needs per issue.
type IssueMeta struct {
	Key           string
	IssueType     string
	BillingMode   string
	Created       time.Time
	Status        string
	EstimateHours decimal.Decimal
}

// IssueFilter narrows tracker queries for ticket sync.
type IssueFilter struct {
	WorkPackageID ledger.WorkPackageID
	IssueTypes    []string
	CreatedFrom   time.Time
	CreatedTo     time.Time
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// TrackerClient is the issue-tracker query interface. Implementations
// handle pagination and auth.
type TrackerClient interface {
	// IssuesByKeys returns metadata for the given issue keys. Unknown
	// keys are simply absent from the result.
	IssuesByKeys(ctx context.Context, keys []string) (map[string]IssueMeta, error)

	// SearchIssues returns issues matching the filter.
	SearchIssues(ctx context.Context, filter IssueFilter) ([]IssueMeta, error)
}

// TimeLogClient is the time-logging query interface.
type TimeLogClient interface {
	// Worklogs returns reported entries for an account key in [from, to].
	Worklogs(ctx context.Context, accountKey string, from, to time.Time) ([]RawWorklog, error)
}
