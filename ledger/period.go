/*
period.go - Validity periods and active-configuration resolution

PURPOSE:
  A work package's contract terms (quantity, rate, surplus handling) are
  time-ranged: each ValidityPeriod covers [Start, End]. Correction models
  are likewise bound to work packages by time-ranged assignments. This
  file resolves, for any given date, which period and which model apply.

RESOLUTION POLICY:
  - Pick the period/assignment whose window contains the date.
  - Overlapping windows are a data-quality condition, not an error:
    the most recently created match wins and a warning is logged.
  - No assignment for the date: fall back to the model flagged default.
  - No default either: corrections pass through unchanged.

SEE ALSO:
  - correction.go: ModelAssignment and CorrectionModel types
  - consumption.go: Consumes ValidityPeriod for period totals
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALIDITY PERIOD - Contract terms for a time window
// =============================================================================

// ValidityPeriod is a time window during which a work package's contract
// terms apply. Created by contract configuration, read-only during
// consumption calculation.
type ValidityPeriod struct {
	ID            string
	WorkPackageID WorkPackageID
	Start         Date
	End           Date

	// TotalQuantity is the contracted bag, in the work package's scope unit.
	TotalQuantity decimal.Decimal

	// Rate is the contracted hourly rate, fed to rate-diff corrections.
	Rate decimal.Decimal

	// RegularizationRate optionally prices regularizations differently.
	RegularizationRate *decimal.Decimal

	// SurplusStrategy names how overconsumption is handled at period
	// level: "carry_over", "forfeit", "flag_for_billing". Empty means
	// forfeit.
	SurplusStrategy string

	CreatedAt time.Time
}

// Contains reports whether the date falls inside [Start, End].
func (p ValidityPeriod) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// ContainsMonth reports whether a month bucket belongs to the period.
// A bucket counts when its first-of-month date is inside the window.
func (p ValidityPeriod) ContainsMonth(m MonthKey) bool {
	return p.Contains(m.First())
}

// =============================================================================
// PURE RESOLUTION - Deterministic tie-breaks over slices
// =============================================================================

// ResolvePeriod picks the validity period covering a date. Multiple
// matches tie-break by latest CreatedAt; the warn callback (optional)
// receives the overlap.
func ResolvePeriod(periods []ValidityPeriod, at Date, warn func(*OverlapWarning)) (*ValidityPeriod, error) {
	var match *ValidityPeriod
	for i := range periods {
		p := &periods[i]
		if !p.Contains(at) {
			continue
		}
		if match == nil {
			match = p
			continue
		}
		if warn != nil {
			warn(&OverlapWarning{
				WorkPackageID: p.WorkPackageID,
				Kind:          "validity_period",
				FirstID:       match.ID,
				SecondID:      p.ID,
			})
		}
		if p.CreatedAt.After(match.CreatedAt) {
			match = p
		}
	}
	if match == nil {
		return nil, ErrNoPeriodForDate
	}
	return match, nil
}

// ResolveAssignment picks the model assignment covering a date, with the
// same latest-created tie-break. Returns nil when none covers the date.
func ResolveAssignment(assignments []ModelAssignment, at Date, warn func(*OverlapWarning)) *ModelAssignment {
	var match *ModelAssignment
	for i := range assignments {
		a := &assignments[i]
		if !a.Covers(at) {
			continue
		}
		if match == nil {
			match = a
			continue
		}
		if warn != nil {
			warn(&OverlapWarning{
				WorkPackageID: a.WorkPackageID,
				Kind:          "model_assignment",
				FirstID:       match.ID,
				SecondID:      a.ID,
			})
		}
		if a.CreatedAt.After(match.CreatedAt) {
			match = a
		}
	}
	return match
}

// ValidatePeriodOverlap warns about any pair of overlapping periods.
// Run at configuration-write time; overlap is allowed but logged.
func ValidatePeriodOverlap(periods []ValidityPeriod) []*OverlapWarning {
	var warnings []*OverlapWarning
	for i := 0; i < len(periods); i++ {
		for j := i + 1; j < len(periods); j++ {
			a, b := periods[i], periods[j]
			if a.Start.BeforeOrEqual(b.End) && b.Start.BeforeOrEqual(a.End) {
				warnings = append(warnings, &OverlapWarning{
					WorkPackageID: a.WorkPackageID,
					Kind:          "validity_period",
					FirstID:       a.ID,
					SecondID:      b.ID,
				})
			}
		}
	}
	return warnings
}

// =============================================================================
// RESOLVER - Store-backed resolution with default-model fallback
// =============================================================================

// Resolver answers "which contract terms and which correction model apply
// on this date?" for a work package.
type Resolver struct {
	Config ConfigStore

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (r *Resolver) warnOverlap(w *OverlapWarning) {
	r.logf("[Resolver] warning: %v", w)
}

// PeriodFor resolves the active validity period for a date.
func (r *Resolver) PeriodFor(ctx context.Context, wpID WorkPackageID, at Date) (*ValidityPeriod, error) {
	periods, err := r.Config.ListPeriods(ctx, wpID)
	if err != nil {
		return nil, err
	}
	return ResolvePeriod(periods, at, r.warnOverlap)
}

// ModelFor resolves the active correction model for a date. Falls back to
// the system default model, then to passthrough.
func (r *Resolver) ModelFor(ctx context.Context, wpID WorkPackageID, at Date) (CorrectionModel, error) {
	assignments, err := r.Config.ListAssignments(ctx, wpID)
	if err != nil {
		return CorrectionModel{}, err
	}

	if a := ResolveAssignment(assignments, at, r.warnOverlap); a != nil {
		model, err := r.Config.GetModel(ctx, a.ModelCode)
		if err != nil {
			return CorrectionModel{}, err
		}
		if model != nil {
			return *model, nil
		}
		r.logf("[Resolver] assignment %s references missing model %q, falling back to default", a.ID, a.ModelCode)
	}

	def, err := r.Config.GetDefaultModel(ctx)
	if err != nil {
		return CorrectionModel{}, err
	}
	if def != nil {
		return *def, nil
	}

	// No assignment and no default: corrections pass through.
	return CorrectionModel{Code: "passthrough", Config: PassthroughConfig()}, nil
}
