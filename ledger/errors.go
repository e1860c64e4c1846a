/*
errors.go - Centralized error types for the consumption engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers should wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - Malformed correction configs (recovered
     locally via passthrough, surfaced at load time by the factory)
  2. Data-quality errors - Overlapping windows, duplicate regularizations
  3. Store errors - Missing records, uniqueness violations

USAGE:
  if errors.Is(err, ledger.ErrDuplicateRegularization) {
      // reject with 409, entry already recorded
  }

SEE ALSO:
  - period.go: Uses ErrNoPeriodForDate
  - regularization.go: Uses ErrDuplicateRegularization
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkPackageNotFound is returned when a referenced work package
	// doesn't exist.
	ErrWorkPackageNotFound = errors.New("work package not found")

	// ErrModelNotFound is returned when a referenced correction model
	// doesn't exist.
	ErrModelNotFound = errors.New("correction model not found")

	// ErrNoPeriodForDate is returned when no validity period covers a date.
	ErrNoPeriodForDate = errors.New("no validity period covers date")

	// ErrRegularizationNotFound is returned when a ledger entry is missing.
	ErrRegularizationNotFound = errors.New("regularization not found")

	// ErrDuplicateRegularization is returned when a manual consumption with
	// the same natural key (work package, date, ticket, quantity) already
	// exists. Expected behavior for double submissions.
	ErrDuplicateRegularization = errors.New("duplicate regularization")

	// ErrInvalidConfig is returned by the factory when a serialized
	// correction config has an unknown or malformed shape.
	ErrInvalidConfig = errors.New("invalid correction config")

	// ErrInvalidWindow is returned when a date window is malformed
	// (end before start).
	ErrInvalidWindow = errors.New("invalid window: end before start")

	// ErrSyncStopped is returned when a sync batch is aborted via the
	// persisted stop flag.
	ErrSyncStopped = errors.New("sync stopped")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlapWarning describes overlapping validity periods or model
// assignments. It is a data-quality condition, not a failure: resolution
// tie-breaks deterministically and logs, configuration writes warn.
type OverlapWarning struct {
	WorkPackageID WorkPackageID
	Kind          string // "validity_period" or "model_assignment"
	FirstID       string
	SecondID      string
}

func (w *OverlapWarning) Error() string {
	return fmt.Sprintf("overlapping %s for %s: %s and %s",
		w.Kind, w.WorkPackageID, w.FirstID, w.SecondID)
}

// DuplicateRegularizationError identifies the colliding entry.
type DuplicateRegularizationError struct {
	WorkPackageID WorkPackageID
	Date          Date
	TicketKey     string
	ExistingID    string
}

func (e *DuplicateRegularizationError) Error() string {
	return fmt.Sprintf("duplicate regularization for %s on %s (ticket %q, existing %s)",
		e.WorkPackageID, e.Date, e.TicketKey, e.ExistingID)
}

func (e *DuplicateRegularizationError) Unwrap() error {
	return ErrDuplicateRegularization
}

// ConfigError reports why a serialized correction config was rejected.
type ConfigError struct {
	Code   string // model code, if known
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("config for model %q rejected: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("config rejected: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateRegularization) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidWindow)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkPackageNotFound) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrNoPeriodForDate) ||
		errors.Is(err, ErrRegularizationNotFound)
}
