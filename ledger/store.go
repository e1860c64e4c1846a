/*
store.go - Persistence interfaces for the consumption engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage; the engine never
  sees SQL.

KEY INTERFACES:
  ConfigStore:         Work packages, validity periods, models, assignments
  WorklogStore:        Normalized worklog entries (replace-by-month writes)
  MetricStore:         Monthly consumed-hours metrics (upsert-only)
  RegularizationStore: Returns / manual consumptions / excess entries
  TicketStore:         Issue metadata for the billing classifier
  SyncRunStore:        Pipeline run records and the stop flag

WRITE DISCIPLINES:
  - WorklogStore.ReplaceMonth is delete-then-insert per (wp, month),
    atomically. Re-syncs replace, never append.
  - MetricStore.Upsert keeps MonthlyMetric unique per (wp, year, month).
  - ConfigStore.SetDefaultModel clears all defaults then sets one inside
    a single transaction: the system never holds two defaults.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for tests

SEE ALSO:
  - aggregate.go, consumption.go: Engine components built on these
*/
package ledger

import "context"

// =============================================================================
// CONFIG STORE - Contract configuration (read-only during sync)
// =============================================================================

type ConfigStore interface {
	SaveWorkPackage(ctx context.Context, wp WorkPackage) error
	GetWorkPackage(ctx context.Context, id WorkPackageID) (*WorkPackage, error)
	ListWorkPackages(ctx context.Context) ([]WorkPackage, error)

	SavePeriod(ctx context.Context, p ValidityPeriod) error
	ListPeriods(ctx context.Context, wpID WorkPackageID) ([]ValidityPeriod, error)

	// SaveModel inserts or updates a model by code, bumping its version.
	// The IsDefault field is ignored; defaults change via SetDefaultModel.
	SaveModel(ctx context.Context, m CorrectionModel) error
	GetModel(ctx context.Context, code string) (*CorrectionModel, error)
	ListModels(ctx context.Context) ([]CorrectionModel, error)

	// SetDefaultModel clears every other default and sets this one,
	// atomically. The "at most one default" invariant lives here.
	SetDefaultModel(ctx context.Context, code string) error
	GetDefaultModel(ctx context.Context) (*CorrectionModel, error)

	SaveAssignment(ctx context.Context, a ModelAssignment) error
	ListAssignments(ctx context.Context, wpID WorkPackageID) ([]ModelAssignment, error)
}

// =============================================================================
// WORKLOG STORE - Normalized entries, replaced wholesale per month
// =============================================================================

type WorklogStore interface {
	// ReplaceMonth atomically deletes the bucket's entries and inserts the
	// new set. This is the ONLY write path: re-syncs never accumulate.
	ReplaceMonth(ctx context.Context, wpID WorkPackageID, month MonthKey, entries []WorklogEntry) error

	EntriesForMonth(ctx context.Context, wpID WorkPackageID, month MonthKey) ([]WorklogEntry, error)

	EntriesInRange(ctx context.Context, wpID WorkPackageID, from, to Date) ([]WorklogEntry, error)
}

// =============================================================================
// METRIC STORE - One row per (wp, year, month)
// =============================================================================

type MetricStore interface {
	// UpsertMetric replaces the bucket's figure. Never inserts duplicates.
	UpsertMetric(ctx context.Context, m MonthlyMetric) error

	GetMetric(ctx context.Context, wpID WorkPackageID, month MonthKey) (*MonthlyMetric, error)

	// MetricsInRange returns metrics whose first-of-month date falls in
	// [from, to], ordered chronologically.
	MetricsInRange(ctx context.Context, wpID WorkPackageID, from, to Date) ([]MonthlyMetric, error)
}

// =============================================================================
// REGULARIZATION STORE
// =============================================================================

type RegularizationStore interface {
	// InsertRegularization fails with ErrDuplicateRegularization when a
	// manual consumption with the same natural key already exists.
	InsertRegularization(ctx context.Context, r Regularization) error

	// UpdateRegularization rewrites an existing entry by ID (quantity,
	// flags). The audit trail keeps the row; there is no silent merge.
	UpdateRegularization(ctx context.Context, r Regularization) error

	DeleteRegularization(ctx context.Context, id string) error

	GetRegularization(ctx context.Context, id string) (*Regularization, error)

	// ListRegularizations returns entries for a work package whose date
	// falls in [from, to], optionally filtered by type.
	ListRegularizations(ctx context.Context, wpID WorkPackageID, from, to Date, types ...RegularizationType) ([]Regularization, error)

	// ExcessForPeriod returns the single excess entry for a validity
	// period, or nil. Keeps excess recalculation idempotent.
	ExcessForPeriod(ctx context.Context, periodID string) (*Regularization, error)
}

// =============================================================================
// TICKET STORE
// =============================================================================

type TicketStore interface {
	UpsertTickets(ctx context.Context, tickets []Ticket) error
	TicketsByWorkPackage(ctx context.Context, wpID WorkPackageID) ([]Ticket, error)
}

// =============================================================================
// SYNC RUN STORE
// =============================================================================

type SyncRunStore interface {
	SaveSyncRun(ctx context.Context, run SyncRun) error

	// ListSyncRuns returns the most recent runs, newest first. Empty wpID
	// means all work packages.
	ListSyncRuns(ctx context.Context, wpID WorkPackageID, limit int) ([]SyncRun, error)

	// Stop flag, checked between work packages during a batch sync.
	IsSyncStopped(ctx context.Context) (bool, error)
	SetSyncStopped(ctx context.Context, stopped bool) error
}
