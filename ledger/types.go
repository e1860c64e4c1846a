/*
Package ledger provides the core consumption engine for contracted
bags of hours.

PURPOSE:
  This package contains the domain types and algorithms that turn raw
  reported hours into billable, corrected, period-scoped consumption
  figures: the correction engine, the monthly aggregator, the
  regularization ledger, and the period consumption calculator.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkPackage: A contracted unit of service for a client
  - WorklogEntry: One normalized reported time entry, bucketed by month
  - MonthlyMetric: The single consumed-hours figure per (wp, year, month)
  - Regularization: A ledger adjustment (return, manual consumption, excess)
  - Ticket: A tracked issue, used by the T&M billing classifier

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Determinism: Corrections are pure functions of input + config
  3. Idempotence: Re-running ingestion or calculation reproduces state
  4. Auditability: Regularizations are never silently dropped or merged

USAGE:
  entry := ledger.WorklogEntry{
      WorkPackageID: "wp-acme-support",
      IssueKey:      "ACME-101",
      Hours:         decimal.NewFromFloat(2.0),
  }

SEE ALSO:
  - correction.go: Correction models (tiered, rate-diff, fixed-factor)
  - aggregate.go: Monthly aggregation of worklog entries
  - consumption.go: Period consumption calculation
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkPackageID string

// =============================================================================
// WORK PACKAGE - Contracted unit of service
// =============================================================================

// ScopeUnit is the unit a work package's contracted quantity is expressed in.
type ScopeUnit string

const (
	ScopeHours  ScopeUnit = "hours"
	ScopeUnits  ScopeUnit = "units"
	ScopeEvents ScopeUnit = "events"
)

// WorkPackage is the aggregation key for consumption tracking.
type WorkPackage struct {
	ID       WorkPackageID
	Name     string
	ClientID string

	// AccountKey identifies this work package in the time-logging system.
	AccountKey string

	ScopeUnit ScopeUnit

	// ValidTicketTypes lists the issue types that consume the bag of hours.
	// Entries with other issue types are excluded from aggregation (but may
	// still feed the T&M billing classifier).
	ValidTicketTypes []string

	// IncludeEvolutiveTM enables the monthly T&M evolutivo report for this
	// work package.
	IncludeEvolutiveTM bool

	CreatedAt time.Time
}

// AcceptsTicketType reports whether the issue type counts toward the bag.
func (wp WorkPackage) AcceptsTicketType(issueType string) bool {
	for _, t := range wp.ValidTicketTypes {
		if t == issueType {
			return true
		}
	}
	return false
}

// =============================================================================
// BILLING MODES AND ISSUE TYPES
// =============================================================================

// Evolutivo (change-request) issue types. Worked hours on these are billed
// either against the bag or under T&M, depending on billing mode.
const (
	IssueTypeEvolutivo      = "Evolutivo"
	IssueTypeHitosEvolutivo = "Hitos-Evolutivos"
)

// T&M-billable billing modes. Evolutivo entries with one of these modes are
// invoiced directly and must never be drawn from the bag.
var tmBillableModes = map[string]bool{
	"T&M Facturable": true,
	"Facturable":     true,
	"Evolutivo T&M":  true,
}

// IsEvolutiveType reports whether an issue type is change-request work.
func IsEvolutiveType(issueType string) bool {
	return issueType == IssueTypeEvolutivo || issueType == IssueTypeHitosEvolutivo
}

// IsTMBillable reports whether a billing mode is invoiced as time-and-materials.
func IsTMBillable(billingMode string) bool {
	return tmBillableModes[billingMode]
}

// =============================================================================
// WORKLOG ENTRY - Normalized reported time
// =============================================================================

// WorklogEntry is one reported time entry after normalization. Entries are
// immutable: re-syncs replace the whole (work package, month) bucket.
type WorklogEntry struct {
	// ID is the entry's natural key from the source system.
	ID string

	WorkPackageID WorkPackageID
	IssueKey      string
	Author        string
	Hours         decimal.Decimal

	// Date is the entry's effective date; Year/Month are its UTC bucket.
	Date  Date
	Year  int
	Month time.Month

	IssueType   string
	BillingMode string

	// ManualTag marks entries imputed by hand rather than synced.
	ManualTag string
}

// Bucket returns the entry's month bucket.
func (e WorklogEntry) Bucket() MonthKey {
	return MonthKey{Year: e.Year, Month: e.Month}
}

// EligibleForBag reports whether the entry consumes the work package's bag.
// Evolutivo work billed as T&M is tracked by the billing classifier instead.
func (e WorklogEntry) EligibleForBag(wp WorkPackage) bool {
	if !wp.AcceptsTicketType(e.IssueType) {
		return false
	}
	if IsEvolutiveType(e.IssueType) && IsTMBillable(e.BillingMode) {
		return false
	}
	return true
}

// =============================================================================
// MONTHLY METRIC - One consumed-hours figure per (wp, year, month)
// =============================================================================

// MonthlyMetric holds the corrected consumed hours for one month bucket.
// Unique per (work package, year, month); upserted by the aggregator,
// never hand-edited.
type MonthlyMetric struct {
	WorkPackageID WorkPackageID
	Year          int
	Month         time.Month
	ConsumedHours decimal.Decimal
	EntryCount    int
	UpdatedAt     time.Time
}

// Bucket returns the metric's month bucket.
func (m MonthlyMetric) Bucket() MonthKey {
	return MonthKey{Year: m.Year, Month: m.Month}
}

// =============================================================================
// REGULARIZATION - Ledger adjustments to consumption
// =============================================================================

type RegularizationType string

const (
	// RegReturn credits hours back to the client.
	RegReturn RegularizationType = "return"

	// RegManualConsumption debits hours consumed outside normal sync.
	RegManualConsumption RegularizationType = "manual_consumption"

	// RegExcess records detected overconsumption beyond the contracted
	// quantity. Produced only by the consumption calculator.
	RegExcess RegularizationType = "excess"
)

// Regularization is a ledger entry adjusting a work package's consumption.
// Entries are never auto-deleted; the ledger is the audit trail.
type Regularization struct {
	ID            string
	WorkPackageID WorkPackageID
	Type          RegularizationType
	Quantity      decimal.Decimal
	Date          Date

	// TicketKey optionally ties a manual consumption to a tracked issue.
	TicketKey string
	Note      string

	// ReviewedForDuplicates supports the human duplicate-review workflow
	// for manual consumptions.
	ReviewedForDuplicates bool

	// Billing-state flags on excess entries. Read by downstream invoicing;
	// mutated only through an explicit administrative correction.
	RevenueRecognized bool
	Billed            bool

	// PeriodID links an excess entry to the validity period it was
	// detected in. Empty for returns and manual consumptions.
	PeriodID string

	CreatedAt time.Time
}

// =============================================================================
// TICKET - Tracked issue metadata for billing classification
// =============================================================================

// Ticket is a tracked issue. The consumption engine only needs the fields
// relevant to billing eligibility; everything else stays in the tracker.
type Ticket struct {
	Key           WorkPackageTicketKey
	WorkPackageID WorkPackageID
	IssueType     string
	BillingMode   string
	CreatedDate   Date
	Status        string

	EstimateHours decimal.Decimal
}

// WorkPackageTicketKey is the tracker's issue key (e.g., "ACME-101").
type WorkPackageTicketKey = string

// =============================================================================
// SYNC RUN - Persisted status of one ingestion pipeline run
// =============================================================================

type SyncRunStatus string

const (
	SyncRunning   SyncRunStatus = "running"
	SyncCompleted SyncRunStatus = "completed"
	SyncFailed    SyncRunStatus = "failed"
	SyncStopped   SyncRunStatus = "stopped"
)

// SyncRun records one per-work-package pipeline execution for audit and
// failure reporting. One work package's failure never aborts the others.
type SyncRun struct {
	ID            string
	WorkPackageID WorkPackageID
	WindowStart   Date
	WindowEnd     Date
	Status        SyncRunStatus
	Error         string
	EntriesSynced int
	StartedAt     time.Time
	CompletedAt   *time.Time
}
