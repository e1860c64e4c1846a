package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/ledger/store"
)

func newAggregator(mem *store.Memory) *ledger.Aggregator {
	quiet := func(string, ...any) {}
	return &ledger.Aggregator{
		Worklogs: mem,
		Metrics:  mem,
		Resolver: &ledger.Resolver{Config: mem, Logf: quiet},
		Logf:     quiet,
	}
}

func supportWP() ledger.WorkPackage {
	return ledger.WorkPackage{
		ID:               "wp-acme",
		Name:             "ACME Support",
		ValidTicketTypes: []string{"Incidencia", "Peticion", ledger.IssueTypeEvolutivo},
	}
}

func entry(id string, day int, hours float64, issueType, billingMode string) ledger.WorklogEntry {
	return ledger.WorklogEntry{
		ID:            id,
		WorkPackageID: "wp-acme",
		IssueKey:      "ACME-" + id,
		Hours:         decimal.NewFromFloat(hours),
		Date:          ledger.NewDate(2024, time.March, day),
		Year:          2024,
		Month:         time.March,
		IssueType:     issueType,
		BillingMode:   billingMode,
	}
}

func TestAggregateMonthSumsCorrectedHours(t *testing.T) {
	// GIVEN the standard tiered model as default and two March entries
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.SaveModel(ctx, ledger.CorrectionModel{
		Code:   "support-blocks",
		Config: ledger.StandardTieredConfig(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := mem.SetDefaultModel(ctx, "support-blocks"); err != nil {
		t.Fatal(err)
	}

	march := ledger.MonthKey{Year: 2024, Month: time.March}
	entries := []ledger.WorklogEntry{
		entry("1", 5, 2.0, "Incidencia", ""),
		entry("2", 12, 6.0, "Peticion", ""),
	}
	if err := mem.ReplaceMonth(ctx, "wp-acme", march, entries); err != nil {
		t.Fatal(err)
	}

	// WHEN the month is aggregated
	metric, err := newAggregator(mem).AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// THEN corrected hours sum: 2.0 -> 2.25, 6.0 -> 7.0
	if !metric.ConsumedHours.Equal(decimal.NewFromFloat(9.25)) {
		t.Errorf("consumed = %s, want 9.25", metric.ConsumedHours)
	}
	if metric.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", metric.EntryCount)
	}
}

func TestAggregateMonthSkipsIneligibleEntries(t *testing.T) {
	// GIVEN entries with a foreign issue type and an evolutivo billed as T&M
	ctx := context.Background()
	mem := store.NewMemory()
	march := ledger.MonthKey{Year: 2024, Month: time.March}
	entries := []ledger.WorklogEntry{
		entry("1", 5, 3.0, "Incidencia", ""),
		entry("2", 6, 4.0, "Bug", ""),
		entry("3", 7, 5.0, ledger.IssueTypeEvolutivo, "T&M Facturable"),
		entry("4", 8, 1.0, ledger.IssueTypeEvolutivo, "Bolsa"),
	}
	if err := mem.ReplaceMonth(ctx, "wp-acme", march, entries); err != nil {
		t.Fatal(err)
	}

	// WHEN the month is aggregated (no models configured: passthrough)
	metric, err := newAggregator(mem).AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// THEN only the incident and the bag-billed evolutivo count: 3 + 1
	if !metric.ConsumedHours.Equal(decimal.NewFromInt(4)) {
		t.Errorf("consumed = %s, want 4", metric.ConsumedHours)
	}
	if metric.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", metric.EntryCount)
	}
}

func TestAggregateMonthEmptyBucketWritesZero(t *testing.T) {
	// GIVEN no entries at all for the bucket
	ctx := context.Background()
	mem := store.NewMemory()
	march := ledger.MonthKey{Year: 2024, Month: time.March}

	// WHEN the month is aggregated
	metric, err := newAggregator(mem).AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// THEN a zero metric is stored, so stale figures cannot survive a re-sync
	if !metric.ConsumedHours.IsZero() {
		t.Errorf("consumed = %s, want 0", metric.ConsumedHours)
	}
	stored, err := mem.GetMetric(ctx, "wp-acme", march)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || !stored.ConsumedHours.IsZero() {
		t.Error("expected a stored zero metric")
	}
}

func TestAggregateMonthIsIdempotent(t *testing.T) {
	// GIVEN a month aggregated once
	ctx := context.Background()
	mem := store.NewMemory()
	march := ledger.MonthKey{Year: 2024, Month: time.March}
	if err := mem.ReplaceMonth(ctx, "wp-acme", march, []ledger.WorklogEntry{
		entry("1", 5, 3.5, "Incidencia", ""),
	}); err != nil {
		t.Fatal(err)
	}
	ag := newAggregator(mem)

	first, err := ag.AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// WHEN aggregation runs again over identical entries
	second, err := ag.AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// THEN the figure is reproduced, never doubled
	if !second.ConsumedHours.Equal(first.ConsumedHours) {
		t.Errorf("second run = %s, first = %s", second.ConsumedHours, first.ConsumedHours)
	}
}

func TestAggregateRangeCoversEveryMonth(t *testing.T) {
	// GIVEN entries in January and March
	ctx := context.Background()
	mem := store.NewMemory()
	jan := ledger.MonthKey{Year: 2024, Month: time.January}
	mar := ledger.MonthKey{Year: 2024, Month: time.March}
	e := entry("1", 10, 2.0, "Incidencia", "")
	e.Date = ledger.NewDate(2024, time.January, 10)
	e.Month = time.January
	if err := mem.ReplaceMonth(ctx, "wp-acme", jan, []ledger.WorklogEntry{e}); err != nil {
		t.Fatal(err)
	}
	if err := mem.ReplaceMonth(ctx, "wp-acme", mar, []ledger.WorklogEntry{
		entry("2", 10, 4.0, "Incidencia", ""),
	}); err != nil {
		t.Fatal(err)
	}

	// WHEN aggregating January through March
	metrics, err := newAggregator(mem).AggregateRange(ctx, supportWP(),
		ledger.NewDate(2024, time.January, 1), ledger.NewDate(2024, time.March, 31))
	if err != nil {
		t.Fatal(err)
	}

	// THEN all three buckets get a metric, February at zero
	if len(metrics) != 3 {
		t.Fatalf("got %d metrics, want 3", len(metrics))
	}
	if !metrics[1].ConsumedHours.IsZero() {
		t.Errorf("February consumed = %s, want 0", metrics[1].ConsumedHours)
	}
}

func TestAggregateRangeRejectsInvertedWindow(t *testing.T) {
	_, err := newAggregator(store.NewMemory()).AggregateRange(context.Background(), supportWP(),
		ledger.NewDate(2024, time.March, 1), ledger.NewDate(2024, time.January, 1))
	if err != ledger.ErrInvalidWindow {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestAggregateUsesRateFromPeriodForRateDiff(t *testing.T) {
	// GIVEN a rate-diff model assigned to the work package and a period
	// carrying the contracted rate
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.SaveModel(ctx, ledger.CorrectionModel{
		Code: "junior-rate",
		Config: ledger.CorrectionConfig{
			Kind:          ledger.KindRateDiff,
			ReferenceRate: decimal.NewFromInt(65),
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := mem.SaveAssignment(ctx, ledger.ModelAssignment{
		ID: "a1", WorkPackageID: "wp-acme", ModelCode: "junior-rate",
		Start: ledger.NewDate(2024, time.January, 1), CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := mem.SavePeriod(ctx, ledger.ValidityPeriod{
		ID: "p1", WorkPackageID: "wp-acme",
		Start:         ledger.NewDate(2024, time.January, 1),
		End:           ledger.NewDate(2024, time.December, 31),
		TotalQuantity: decimal.NewFromInt(100),
		Rate:          decimal.NewFromInt(45),
		CreatedAt:     time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	march := ledger.MonthKey{Year: 2024, Month: time.March}
	if err := mem.ReplaceMonth(ctx, "wp-acme", march, []ledger.WorklogEntry{
		entry("1", 5, 10.0, "Incidencia", ""),
	}); err != nil {
		t.Fatal(err)
	}

	// WHEN the month is aggregated
	metric, err := newAggregator(mem).AggregateMonth(ctx, supportWP(), march)
	if err != nil {
		t.Fatal(err)
	}

	// THEN 10 hours at 45/65 consume 6.92
	if !metric.ConsumedHours.Equal(decimal.NewFromFloat(6.92)) {
		t.Errorf("consumed = %s, want 6.92", metric.ConsumedHours)
	}
}
