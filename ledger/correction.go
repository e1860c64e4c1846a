/*
correction.go - Correction model evaluator

PURPOSE:
  Transforms reported hours into corrected/billable hours under a
  configurable policy. This is where "2.0 hours logged" becomes
  "2.25 hours billed".

CORRECTION KINDS:
  Tiered:
    Ordered tiers, each with an upper bound and an operation. The first
    tier whose max covers the reported hours wins. Used for support
    contracts that round small interventions up to billing blocks.

  RateDiff:
    Scales hours by currentRate / referenceRate. Used when work is
    delivered at a different hourly rate than the one the bag was
    contracted at.

  FixedFactor:
    Plain multiplier. Factor 1.0 is the passthrough model.

EVALUATION RULES:
  - Pure and deterministic: same hours + same config + same context
    always produce the same output.
  - Correction failures never block consumption recording. A malformed
    or inapplicable config falls back to returning the reported hours
    unchanged.

EXAMPLE:
  out := ledger.ApplyCorrection(decimal.NewFromFloat(2.0),
      ledger.StandardTieredConfig(), ledger.CorrectionContext{})
  // out == 2.25

SEE ALSO:
  - factory/config.go: Parses serialized configs into CorrectionConfig
  - aggregate.go: Applies corrections per entry during aggregation
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CORRECTION CONFIG - Closed tagged variant
// =============================================================================

type CorrectionKind string

const (
	KindTiered      CorrectionKind = "tiered"
	KindRateDiff    CorrectionKind = "rate_diff"
	KindFixedFactor CorrectionKind = "fixed_factor"
)

type TierOp string

const (
	TierAdd      TierOp = "add"      // result = hours + value
	TierFixed    TierOp = "fixed"    // result = value
	TierMultiply TierOp = "multiply" // result = hours * value
)

// Tier is one band of a tiered correction. Tiers must be supplied in
// ascending Max order with a final catch-all tier of very high Max.
type Tier struct {
	Max   decimal.Decimal
	Op    TierOp
	Value decimal.Decimal
}

// CorrectionConfig is the validated form of a correction model. Unknown
// shapes are rejected at load time (factory package), not at evaluation.
type CorrectionConfig struct {
	Kind CorrectionKind

	// Tiered
	Tiers []Tier

	// RateDiff. Zero means "use the default reference rate".
	ReferenceRate decimal.Decimal

	// FixedFactor. Zero means "use factor 1.0".
	Factor decimal.Decimal
}

// CorrectionContext carries per-evaluation inputs that are not part of the
// model itself.
type CorrectionContext struct {
	// CurrentRate is the rate of the validity period the entry falls in.
	// Only used by rate-diff models.
	CurrentRate decimal.Decimal
}

// DefaultReferenceRate is used by rate-diff models that do not set one.
var DefaultReferenceRate = decimal.NewFromInt(65)

// PassthroughConfig returns the identity correction.
func PassthroughConfig() CorrectionConfig {
	return CorrectionConfig{Kind: KindFixedFactor, Factor: decimal.NewFromInt(1)}
}

// StandardTieredConfig is the default support-contract rounding model:
// small interventions round up to billing blocks, a full day bills as 8.5,
// and anything above passes through.
func StandardTieredConfig() CorrectionConfig {
	return CorrectionConfig{
		Kind: KindTiered,
		Tiers: []Tier{
			{Max: decimal.NewFromFloat(0.5), Op: TierAdd, Value: decimal.Zero},
			{Max: decimal.NewFromFloat(3.5), Op: TierAdd, Value: decimal.NewFromFloat(0.25)},
			{Max: decimal.NewFromFloat(5.5), Op: TierAdd, Value: decimal.NewFromFloat(0.5)},
			{Max: decimal.NewFromFloat(7.5), Op: TierAdd, Value: decimal.NewFromInt(1)},
			{Max: decimal.NewFromFloat(8.5), Op: TierFixed, Value: decimal.NewFromFloat(8.5)},
			{Max: decimal.NewFromInt(999), Op: TierAdd, Value: decimal.Zero},
		},
	}
}

// =============================================================================
// EVALUATOR
// =============================================================================

// ApplyCorrection transforms reported hours under the given model.
// It never fails: inapplicable or malformed configs return the reported
// hours unchanged.
func ApplyCorrection(reported decimal.Decimal, cfg CorrectionConfig, cctx CorrectionContext) decimal.Decimal {
	switch cfg.Kind {
	case KindTiered:
		return applyTiered(reported, cfg.Tiers)
	case KindRateDiff:
		return applyRateDiff(reported, cfg.ReferenceRate, cctx.CurrentRate)
	case KindFixedFactor:
		factor := cfg.Factor
		if factor.IsZero() {
			factor = decimal.NewFromInt(1)
		}
		return reported.Mul(factor)
	default:
		return reported
	}
}

func applyTiered(reported decimal.Decimal, tiers []Tier) decimal.Decimal {
	for _, tier := range tiers {
		if tier.Max.LessThan(reported) {
			continue
		}
		switch tier.Op {
		case TierAdd:
			// Reported hours pass through unrounded so tiers with a
			// zero surcharge are exact identities (0.25 -> 0.25).
			return reported.Add(tier.Value)
		case TierFixed:
			return tier.Value
		case TierMultiply:
			return reported.Mul(tier.Value).Round(1)
		}
	}
	// No tier matched: malformed config, pass through.
	return reported
}

func applyRateDiff(reported, referenceRate, currentRate decimal.Decimal) decimal.Decimal {
	// No rate for the period means no correction. This is the safe
	// fallback, not an error: consumption recording must not block.
	if currentRate.IsZero() {
		return reported
	}
	if referenceRate.IsZero() {
		referenceRate = DefaultReferenceRate
	}
	factor := currentRate.Div(referenceRate)
	return reported.Mul(factor).Round(2)
}

// =============================================================================
// CORRECTION MODEL - Stored, versioned configuration
// =============================================================================

// CorrectionModel is a named, versioned correction configuration. At most
// one model system-wide holds IsDefault; the store enforces this with a
// clear-others-then-set transaction.
type CorrectionModel struct {
	Code      string
	Name      string
	Config    CorrectionConfig
	IsDefault bool
	Version   int
	CreatedAt time.Time
}

// =============================================================================
// MODEL ASSIGNMENT - Time-ranged binding of a model to a work package
// =============================================================================

// ModelAssignment binds a correction model to a work package for a date
// range. End nil means open-ended. Multiple assignments may exist over a
// work package's history; resolution tie-breaks by latest CreatedAt.
type ModelAssignment struct {
	ID            string
	WorkPackageID WorkPackageID
	ModelCode     string
	Start         Date
	End           *Date
	CreatedAt     time.Time
}

// Covers reports whether the assignment is active on the given date.
func (a ModelAssignment) Covers(d Date) bool {
	if d.Before(a.Start) {
		return false
	}
	if a.End != nil && d.After(*a.End) {
		return false
	}
	return true
}
