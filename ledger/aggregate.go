/*
aggregate.go - Monthly aggregation of corrected hours

PURPOSE:
  Folds a month's eligible worklog entries into the single MonthlyMetric
  row for (work package, year, month). Each entry is corrected under the
  model active on its date before summing.

ELIGIBILITY:
  An entry counts toward the bag when its issue type is in the work
  package's valid-ticket-type list, unless it is evolutivo work billed
  as T&M - those hours belong to the billing classifier, not the bag.

IDEMPOTENCE:
  Aggregation upserts: re-running over identical entries reproduces the
  same metric, never a duplicate row and never double counting.

SEE ALSO:
  - correction.go: ApplyCorrection
  - consumption.go: Combines metrics with the regularization ledger
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes MonthlyMetric rows from normalized worklog entries.
type Aggregator struct {
	Worklogs WorklogStore
	Metrics  MetricStore
	Resolver *Resolver

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (ag *Aggregator) logf(format string, args ...any) {
	if ag.Logf != nil {
		ag.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// AggregateMonth sums corrected hours over the bucket's eligible entries
// and upserts the metric. Returns the stored metric.
func (ag *Aggregator) AggregateMonth(ctx context.Context, wp WorkPackage, month MonthKey) (MonthlyMetric, error) {
	entries, err := ag.Worklogs.EntriesForMonth(ctx, wp.ID, month)
	if err != nil {
		return MonthlyMetric{}, err
	}

	total := decimal.Zero
	count := 0
	for _, entry := range entries {
		if !entry.EligibleForBag(wp) {
			continue
		}
		corrected, err := ag.correct(ctx, wp.ID, entry)
		if err != nil {
			return MonthlyMetric{}, err
		}
		total = total.Add(corrected)
		count++
	}

	metric := MonthlyMetric{
		WorkPackageID: wp.ID,
		Year:          month.Year,
		Month:         month.Month,
		ConsumedHours: total,
		EntryCount:    count,
		UpdatedAt:     time.Now().UTC(),
	}

	if err := ag.Metrics.UpsertMetric(ctx, metric); err != nil {
		return MonthlyMetric{}, err
	}

	ag.logf("[Aggregator] %s %s: %s corrected hours over %d entries",
		wp.ID, month, total.StringFixed(2), count)

	return metric, nil
}

// AggregateRange aggregates every month bucket covered by [from, to].
func (ag *Aggregator) AggregateRange(ctx context.Context, wp WorkPackage, from, to Date) ([]MonthlyMetric, error) {
	if to.Before(from) {
		return nil, ErrInvalidWindow
	}
	var metrics []MonthlyMetric
	for _, month := range MonthsBetween(from, to) {
		m, err := ag.AggregateMonth(ctx, wp, month)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// correct applies the model active on the entry's date. The correction
// context carries the validity period's rate for rate-diff models; a
// missing period simply leaves the rate at zero (safe passthrough).
func (ag *Aggregator) correct(ctx context.Context, wpID WorkPackageID, entry WorklogEntry) (decimal.Decimal, error) {
	model, err := ag.Resolver.ModelFor(ctx, wpID, entry.Date)
	if err != nil {
		return decimal.Zero, err
	}

	cctx := CorrectionContext{}
	if model.Config.Kind == KindRateDiff {
		period, err := ag.Resolver.PeriodFor(ctx, wpID, entry.Date)
		switch {
		case err == nil:
			cctx.CurrentRate = period.Rate
		case IsNotFound(err):
			ag.logf("[Aggregator] no validity period for %s on %s, rate-diff passes through", wpID, entry.Date)
		default:
			return decimal.Zero, err
		}
	}

	return ApplyCorrection(entry.Hours, model.Config, cctx), nil
}
