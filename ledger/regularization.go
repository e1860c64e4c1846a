/*
regularization.go - Regularization ledger lifecycle

PURPOSE:
  Administrative entry points for the regularization ledger: recording
  returns and manual consumptions, the duplicate-review workflow, and
  the explicit billing-flag correction path for excess entries.

DUPLICATE DEFENSE:
  The primary defense against duplicate manual consumptions is the
  store's natural-key uniqueness (work package + date + ticket +
  quantity). The ReviewedForDuplicates flag is the secondary, human
  safety net: suspect entries are flagged for review, never auto-
  resolved.

SEE ALSO:
  - consumption.go: Creates excess entries (the only non-admin writer)
  - store.go: RegularizationStore contract
*/
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// REGULARIZATION LEDGER
// =============================================================================

// RegularizationLedger wraps the store with validation and audit logging.
type RegularizationLedger struct {
	Store RegularizationStore

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (l *RegularizationLedger) logf(format string, args ...any) {
	if l.Logf != nil {
		l.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Record validates and inserts a return or manual consumption. Excess
// entries are produced only by the consumption calculator, never here.
func (l *RegularizationLedger) Record(ctx context.Context, r Regularization) (Regularization, error) {
	switch r.Type {
	case RegReturn, RegManualConsumption:
	case RegExcess:
		return Regularization{}, fmt.Errorf("excess regularizations are produced by the consumption calculator")
	default:
		return Regularization{}, fmt.Errorf("unknown regularization type %q", r.Type)
	}

	if r.Quantity.IsZero() || r.Quantity.IsNegative() {
		return Regularization{}, fmt.Errorf("regularization quantity must be positive, got %s", r.Quantity)
	}
	if r.WorkPackageID == "" {
		return Regularization{}, ErrWorkPackageNotFound
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if err := l.Store.InsertRegularization(ctx, r); err != nil {
		return Regularization{}, err
	}

	l.logf("[Regularization] recorded %s of %s for %s on %s",
		r.Type, r.Quantity.StringFixed(2), r.WorkPackageID, r.Date)
	return r, nil
}

// List returns ledger entries for a work package in [from, to].
func (l *RegularizationLedger) List(ctx context.Context, wpID WorkPackageID, from, to Date, types ...RegularizationType) ([]Regularization, error) {
	if to.Before(from) {
		return nil, ErrInvalidWindow
	}
	return l.Store.ListRegularizations(ctx, wpID, from, to, types...)
}

// Delete removes an entry by administrative action. The ledger itself
// never auto-deletes; this exists for explicit corrections only.
func (l *RegularizationLedger) Delete(ctx context.Context, id string) error {
	existing, err := l.Store.GetRegularization(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRegularizationNotFound
	}
	if err := l.Store.DeleteRegularization(ctx, id); err != nil {
		return err
	}
	l.logf("[Regularization] deleted %s (%s %s for %s)",
		id, existing.Type, existing.Quantity.StringFixed(2), existing.WorkPackageID)
	return nil
}

// MarkReviewed flags a manual consumption as reviewed for duplicates.
func (l *RegularizationLedger) MarkReviewed(ctx context.Context, id string) error {
	existing, err := l.Store.GetRegularization(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRegularizationNotFound
	}
	if existing.ReviewedForDuplicates {
		return nil
	}
	existing.ReviewedForDuplicates = true
	return l.Store.UpdateRegularization(ctx, *existing)
}

// SetBillingFlags is the explicit administrative correction path for the
// billing state of an excess entry. Downstream invoicing reads these
// flags; nothing else mutates them once set.
func (l *RegularizationLedger) SetBillingFlags(ctx context.Context, id string, revenueRecognized, billed *bool) error {
	existing, err := l.Store.GetRegularization(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRegularizationNotFound
	}
	if existing.Type != RegExcess {
		return fmt.Errorf("billing flags only apply to excess entries, %s is %s", id, existing.Type)
	}
	if revenueRecognized != nil {
		existing.RevenueRecognized = *revenueRecognized
	}
	if billed != nil {
		existing.Billed = *billed
	}
	return l.Store.UpdateRegularization(ctx, *existing)
}
