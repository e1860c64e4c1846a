/*
consumption.go - Period-level consumption calculation

PURPOSE:
  Combines monthly metrics with the regularization ledger to answer
  "how much of the bag has this period consumed, and how much is left?"

ALGORITHM:
  consumed  = sum(metrics in window) - sum(returns) + sum(manual)
  remaining = period.TotalQuantity - consumed

  A month bucket belongs to the window when its first-of-month date is
  inside [period.Start, period.End]. Regularizations are scoped by their
  own date in the same window.

OVERCONSUMPTION:
  When consumed exceeds the contracted quantity the calculator records
  (or updates) exactly ONE excess regularization for the period and
  applies the period's configured surplus strategy. Recalculation is
  idempotent: the same inputs never produce a second excess row, and
  excess entries are additive facts - they are NOT subtracted back into
  the metrics.

SEE ALSO:
  - regularization.go: Ledger entry lifecycle
  - period.go: ValidityPeriod resolution
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT TYPE
// =============================================================================

// PeriodConsumption is the computed consumption state of one validity
// period. It is a pure function of the metric and regularization rows
// inside the period window.
type PeriodConsumption struct {
	Period ValidityPeriod

	MetricsTotal decimal.Decimal
	ReturnsTotal decimal.Decimal
	ManualTotal  decimal.Decimal

	Consumed  decimal.Decimal
	Remaining decimal.Decimal

	OverContracted bool
	Excess         decimal.Decimal
}

// =============================================================================
// SURPLUS STRATEGIES - Pluggable overconsumption handling
// =============================================================================

// SurplusStrategy decides what happens to hours consumed beyond the
// contracted quantity. Strategies run after the excess entry is recorded.
type SurplusStrategy interface {
	Name() string
	Apply(ctx context.Context, pc *PeriodConsumption, excess *Regularization) error
}

// StrategyRegistry resolves strategies by the name stored on the period.
type StrategyRegistry struct {
	strategies map[string]SurplusStrategy
	fallback   SurplusStrategy
}

func NewStrategyRegistry(fallback SurplusStrategy, strategies ...SurplusStrategy) *StrategyRegistry {
	reg := &StrategyRegistry{strategies: map[string]SurplusStrategy{}, fallback: fallback}
	for _, s := range strategies {
		reg.strategies[s.Name()] = s
	}
	if fallback != nil {
		reg.strategies[fallback.Name()] = fallback
	}
	return reg
}

// Resolve returns the named strategy or the fallback.
func (sr *StrategyRegistry) Resolve(name string) SurplusStrategy {
	if s, ok := sr.strategies[name]; ok {
		return s
	}
	return sr.fallback
}

// ForfeitStrategy drops the surplus: the excess entry stays as an audit
// fact and nothing else happens. This is the default.
type ForfeitStrategy struct{}

func (ForfeitStrategy) Name() string { return "forfeit" }
func (ForfeitStrategy) Apply(ctx context.Context, pc *PeriodConsumption, excess *Regularization) error {
	return nil
}

// FlagForBillingStrategy marks the excess as awaiting invoicing. The
// billing flags themselves stay false until invoicing confirms them.
type FlagForBillingStrategy struct {
	Store RegularizationStore
}

func (FlagForBillingStrategy) Name() string { return "flag_for_billing" }
func (s FlagForBillingStrategy) Apply(ctx context.Context, pc *PeriodConsumption, excess *Regularization) error {
	if excess.Note != "" {
		return nil
	}
	excess.Note = "pending billing review"
	return s.Store.UpdateRegularization(ctx, *excess)
}

// CarryOverStrategy credits the surplus into the following period as a
// RETURN dated the day after the period ends. Idempotent: the carry-over
// entry is keyed on the source period and only created once.
type CarryOverStrategy struct {
	Store RegularizationStore
}

func (CarryOverStrategy) Name() string { return "carry_over" }

func (s CarryOverStrategy) Apply(ctx context.Context, pc *PeriodConsumption, excess *Regularization) error {
	carryDate := pc.Period.End.AddDays(1)
	ticketKey := "carryover:" + pc.Period.ID

	existing, err := s.Store.ListRegularizations(ctx, pc.Period.WorkPackageID, carryDate, carryDate, RegReturn)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.TicketKey == ticketKey {
			if r.Quantity.Equal(pc.Excess) {
				return nil
			}
			r.Quantity = pc.Excess
			return s.Store.UpdateRegularization(ctx, r)
		}
	}

	return s.Store.InsertRegularization(ctx, Regularization{
		ID:            uuid.NewString(),
		WorkPackageID: pc.Period.WorkPackageID,
		Type:          RegReturn,
		Quantity:      pc.Excess,
		Date:          carryDate,
		TicketKey:     ticketKey,
		Note:          "surplus carried over from previous period",
		CreatedAt:     time.Now().UTC(),
	})
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes period consumption totals.
type Calculator struct {
	Metrics         MetricStore
	Regularizations RegularizationStore
	Strategies      *StrategyRegistry

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (c *Calculator) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ComputePeriodConsumption combines monthly metrics with the
// regularization ledger for one validity period. When overconsumption is
// detected it records (or updates) the period's single excess entry and
// applies the configured surplus strategy.
func (c *Calculator) ComputePeriodConsumption(ctx context.Context, period ValidityPeriod) (*PeriodConsumption, error) {
	if period.End.Before(period.Start) {
		return nil, ErrInvalidWindow
	}

	metrics, err := c.Metrics.MetricsInRange(ctx, period.WorkPackageID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	metricsTotal := decimal.Zero
	for _, m := range metrics {
		if period.ContainsMonth(m.Bucket()) {
			metricsTotal = metricsTotal.Add(m.ConsumedHours)
		}
	}

	returnsTotal, err := c.sumRegularizations(ctx, period, RegReturn)
	if err != nil {
		return nil, err
	}
	manualTotal, err := c.sumRegularizations(ctx, period, RegManualConsumption)
	if err != nil {
		return nil, err
	}

	consumed := metricsTotal.Sub(returnsTotal).Add(manualTotal)
	remaining := period.TotalQuantity.Sub(consumed)

	pc := &PeriodConsumption{
		Period:       period,
		MetricsTotal: metricsTotal,
		ReturnsTotal: returnsTotal,
		ManualTotal:  manualTotal,
		Consumed:     consumed,
		Remaining:    remaining,
	}

	if consumed.GreaterThan(period.TotalQuantity) {
		pc.OverContracted = true
		pc.Excess = consumed.Sub(period.TotalQuantity)
		if err := c.recordExcess(ctx, pc); err != nil {
			return nil, err
		}
	}

	return pc, nil
}

// sumRegularizations totals ledger entries of one type inside the period
// window. Carry-over returns are excluded from their source period: they
// are dated the day after the window ends by construction.
func (c *Calculator) sumRegularizations(ctx context.Context, period ValidityPeriod, regType RegularizationType) (decimal.Decimal, error) {
	entries, err := c.Regularizations.ListRegularizations(ctx, period.WorkPackageID, period.Start, period.End, regType)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range entries {
		total = total.Add(r.Quantity)
	}
	return total, nil
}

// recordExcess upserts the period's single excess entry and applies the
// surplus strategy. Excess is an additive fact about overconsumption; it
// never flows back into the metrics.
func (c *Calculator) recordExcess(ctx context.Context, pc *PeriodConsumption) error {
	existing, err := c.Regularizations.ExcessForPeriod(ctx, pc.Period.ID)
	if err != nil {
		return err
	}

	var excess *Regularization
	switch {
	case existing == nil:
		excess = &Regularization{
			ID:            uuid.NewString(),
			WorkPackageID: pc.Period.WorkPackageID,
			Type:          RegExcess,
			Quantity:      pc.Excess,
			Date:          pc.Period.End,
			PeriodID:      pc.Period.ID,
			Note:          "overconsumption beyond contracted quantity",
			CreatedAt:     time.Now().UTC(),
		}
		if err := c.Regularizations.InsertRegularization(ctx, *excess); err != nil {
			return err
		}
		c.logf("[Calculator] period %s over-contracted by %s, excess recorded",
			pc.Period.ID, pc.Excess.StringFixed(2))

	case existing.Quantity.Equal(pc.Excess):
		// Idempotent recalculation: nothing changed.
		excess = existing

	default:
		// Quantity moved (late worklogs, new regularizations). Update in
		// place; billing flags are preserved, never reset here.
		existing.Quantity = pc.Excess
		if err := c.Regularizations.UpdateRegularization(ctx, *existing); err != nil {
			return err
		}
		excess = existing
		c.logf("[Calculator] period %s excess updated to %s",
			pc.Period.ID, pc.Excess.StringFixed(2))
	}

	if c.Strategies == nil {
		return nil
	}
	strategy := c.Strategies.Resolve(pc.Period.SurplusStrategy)
	if strategy == nil {
		return nil
	}
	return strategy.Apply(ctx, pc, excess)
}
