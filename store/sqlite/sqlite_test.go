package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func TestWorkPackageRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wp := ledger.WorkPackage{
		ID:                 "wp-acme",
		Name:               "ACME Support",
		ClientID:           "acme",
		AccountKey:         "acct-1",
		ScopeUnit:          ledger.ScopeHours,
		ValidTicketTypes:   []string{"Incidencia", "Peticion"},
		IncludeEvolutiveTM: true,
	}
	require.NoError(t, s.SaveWorkPackage(ctx, wp))

	got, err := s.GetWorkPackage(ctx, "wp-acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, wp.Name, got.Name)
	assert.Equal(t, wp.ValidTicketTypes, got.ValidTicketTypes)
	assert.True(t, got.IncludeEvolutiveTM)

	missing, err := s.GetWorkPackage(ctx, "wp-ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveWorkPackageUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWorkPackage(ctx, ledger.WorkPackage{ID: "wp-1", Name: "old"}))
	require.NoError(t, s.SaveWorkPackage(ctx, ledger.WorkPackage{ID: "wp-1", Name: "new"}))

	all, err := s.ListWorkPackages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Name)
}

func TestPeriodRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	regRate := decimal.NewFromInt(50)
	p := ledger.ValidityPeriod{
		ID:                 "p1",
		WorkPackageID:      "wp-1",
		Start:              ledger.NewDate(2024, time.January, 1),
		End:                ledger.NewDate(2024, time.December, 31),
		TotalQuantity:      decimal.NewFromFloat(120.5),
		Rate:               decimal.NewFromInt(65),
		RegularizationRate: &regRate,
		SurplusStrategy:    "carry_over",
	}
	require.NoError(t, s.SavePeriod(ctx, p))

	periods, err := s.ListPeriods(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	got := periods[0]
	assert.True(t, got.TotalQuantity.Equal(p.TotalQuantity), "quantity = %s", got.TotalQuantity)
	assert.Equal(t, "2024-01-01", got.Start.String())
	assert.Equal(t, "2024-12-31", got.End.String())
	require.NotNil(t, got.RegularizationRate)
	assert.True(t, got.RegularizationRate.Equal(regRate))
	assert.Equal(t, "carry_over", got.SurplusStrategy)
}

func TestSaveModelBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := ledger.CorrectionModel{Code: "support-blocks", Name: "v1", Config: ledger.StandardTieredConfig()}
	require.NoError(t, s.SaveModel(ctx, m))
	m.Name = "v2"
	require.NoError(t, s.SaveModel(ctx, m))

	got, err := s.GetModel(ctx, "support-blocks")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Name)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, ledger.KindTiered, got.Config.Kind)
	assert.Len(t, got.Config.Tiers, len(ledger.StandardTieredConfig().Tiers))
}

func TestSetDefaultModelKeepsSingleDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ledger.CorrectionModel{Code: "a", Name: "A", Config: ledger.PassthroughConfig()}))
	require.NoError(t, s.SaveModel(ctx, ledger.CorrectionModel{Code: "b", Name: "B", Config: ledger.StandardTieredConfig()}))

	require.NoError(t, s.SetDefaultModel(ctx, "a"))
	require.NoError(t, s.SetDefaultModel(ctx, "b"))

	def, err := s.GetDefaultModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "b", def.Code)

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, m := range models {
		if m.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestSaveModelNeverWritesDefaultFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ledger.CorrectionModel{Code: "a", Name: "A", Config: ledger.PassthroughConfig()}))
	require.NoError(t, s.SetDefaultModel(ctx, "a"))

	// Inserting with the flag set must not create a second default.
	require.NoError(t, s.SaveModel(ctx, ledger.CorrectionModel{
		Code: "b", Name: "B", Config: ledger.StandardTieredConfig(), IsDefault: true,
	}))
	b, err := s.GetModel(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, b.IsDefault)

	// Re-saving the current default must not clear it.
	require.NoError(t, s.SaveModel(ctx, ledger.CorrectionModel{Code: "a", Name: "A2", Config: ledger.PassthroughConfig()}))
	def, err := s.GetDefaultModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "a", def.Code)
}

func TestSetDefaultModelUnknownCode(t *testing.T) {
	s := newTestStore(t)

	err := s.SetDefaultModel(context.Background(), "ghost")

	assert.ErrorIs(t, err, ledger.ErrModelNotFound)
}

func TestAssignmentRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	end := ledger.NewDate(2024, time.June, 30)
	a := ledger.ModelAssignment{
		ID:            "a1",
		WorkPackageID: "wp-1",
		ModelCode:     "support-blocks",
		Start:         ledger.NewDate(2024, time.January, 1),
		End:           &end,
	}
	require.NoError(t, s.SaveAssignment(ctx, a))

	got, err := s.ListAssignments(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "support-blocks", got[0].ModelCode)
	require.NotNil(t, got[0].End)
	assert.Equal(t, "2024-06-30", got[0].End.String())
}

// =============================================================================
// WORKLOG + METRIC STORES
// =============================================================================

func marchEntry(id string, day int, hours float64) ledger.WorklogEntry {
	return ledger.WorklogEntry{
		ID:            id,
		WorkPackageID: "wp-1",
		IssueKey:      "ACME-" + id,
		Author:        "dev",
		Hours:         decimal.NewFromFloat(hours),
		Date:          ledger.NewDate(2024, time.March, day),
		Year:          2024,
		Month:         time.March,
		IssueType:     "Incidencia",
	}
}

func TestReplaceMonthDeletesThenInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	march := ledger.MonthKey{Year: 2024, Month: time.March}

	require.NoError(t, s.ReplaceMonth(ctx, "wp-1", march, []ledger.WorklogEntry{
		marchEntry("1", 5, 2), marchEntry("2", 6, 3),
	}))
	require.NoError(t, s.ReplaceMonth(ctx, "wp-1", march, []ledger.WorklogEntry{
		marchEntry("3", 7, 4),
	}))

	entries, err := s.EntriesForMonth(ctx, "wp-1", march)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].ID)
	assert.True(t, entries[0].Hours.Equal(decimal.NewFromInt(4)))
}

func TestReplaceMonthWithEmptySetClears(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	march := ledger.MonthKey{Year: 2024, Month: time.March}

	require.NoError(t, s.ReplaceMonth(ctx, "wp-1", march, []ledger.WorklogEntry{marchEntry("1", 5, 2)}))
	require.NoError(t, s.ReplaceMonth(ctx, "wp-1", march, nil))

	entries, err := s.EntriesForMonth(ctx, "wp-1", march)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntriesInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	march := ledger.MonthKey{Year: 2024, Month: time.March}

	require.NoError(t, s.ReplaceMonth(ctx, "wp-1", march, []ledger.WorklogEntry{
		marchEntry("1", 5, 2), marchEntry("2", 20, 3),
	}))

	got, err := s.EntriesInRange(ctx, "wp-1",
		ledger.NewDate(2024, time.March, 1), ledger.NewDate(2024, time.March, 10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestUpsertMetricKeepsSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	march := ledger.MonthKey{Year: 2024, Month: time.March}

	m := ledger.MonthlyMetric{
		WorkPackageID: "wp-1", Year: 2024, Month: time.March,
		ConsumedHours: decimal.NewFromInt(10), EntryCount: 3,
	}
	require.NoError(t, s.UpsertMetric(ctx, m))
	m.ConsumedHours = decimal.NewFromFloat(12.5)
	m.EntryCount = 4
	require.NoError(t, s.UpsertMetric(ctx, m))

	got, err := s.GetMetric(ctx, "wp-1", march)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ConsumedHours.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, 4, got.EntryCount)

	all, err := s.MetricsInRange(ctx, "wp-1",
		ledger.NewDate(2024, time.January, 1), ledger.NewDate(2024, time.December, 31))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMetricsInRangeFiltersByFirstOfMonth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []time.Month{time.January, time.February, time.March} {
		require.NoError(t, s.UpsertMetric(ctx, ledger.MonthlyMetric{
			WorkPackageID: "wp-1", Year: 2024, Month: m,
			ConsumedHours: decimal.NewFromInt(int64(m)),
		}))
	}

	got, err := s.MetricsInRange(ctx, "wp-1",
		ledger.NewDate(2024, time.February, 1), ledger.NewDate(2024, time.March, 31))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.February, got[0].Month)
	assert.Equal(t, time.March, got[1].Month)
}

// =============================================================================
// REGULARIZATION STORE
// =============================================================================

func manualReg(id string, quantity float64) ledger.Regularization {
	return ledger.Regularization{
		ID:            id,
		WorkPackageID: "wp-1",
		Type:          ledger.RegManualConsumption,
		Quantity:      decimal.NewFromFloat(quantity),
		Date:          ledger.NewDate(2024, time.April, 10),
		TicketKey:     "ACME-42",
	}
}

func TestDuplicateManualConsumptionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRegularization(ctx, manualReg("r1", 2.5)))

	err := s.InsertRegularization(ctx, manualReg("r2", 2.5))
	assert.ErrorIs(t, err, ledger.ErrDuplicateRegularization)

	var dup *ledger.DuplicateRegularizationError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ACME-42", dup.TicketKey)

	// Different quantity on the same natural key is a distinct fact.
	assert.NoError(t, s.InsertRegularization(ctx, manualReg("r3", 3)))
}

func TestDuplicateTicketlessManualConsumptionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := manualReg("r1", 5)
	first.TicketKey = ""
	require.NoError(t, s.InsertRegularization(ctx, first))

	// Same work package, date, and quantity with no ticket key is still
	// the same natural key.
	second := manualReg("r2", 5)
	second.TicketKey = ""
	err := s.InsertRegularization(ctx, second)
	assert.ErrorIs(t, err, ledger.ErrDuplicateRegularization)

	// A ticketed entry on the same day is a distinct fact.
	assert.NoError(t, s.InsertRegularization(ctx, manualReg("r3", 5)))
}

func TestReturnsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := manualReg("r1", 2)
	r.Type = ledger.RegReturn
	require.NoError(t, s.InsertRegularization(ctx, r))
	r.ID = "r2"
	assert.NoError(t, s.InsertRegularization(ctx, r))
}

func TestExcessUniquePerPeriod(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	excess := ledger.Regularization{
		ID:            "e1",
		WorkPackageID: "wp-1",
		Type:          ledger.RegExcess,
		Quantity:      decimal.NewFromInt(10),
		Date:          ledger.NewDate(2024, time.December, 31),
		PeriodID:      "p-2024",
	}
	require.NoError(t, s.InsertRegularization(ctx, excess))

	excess.ID = "e2"
	err := s.InsertRegularization(ctx, excess)
	assert.ErrorIs(t, err, ledger.ErrDuplicateRegularization)

	got, err := s.ExcessForPeriod(ctx, "p-2024")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "e1", got.ID)

	none, err := s.ExcessForPeriod(ctx, "p-other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpdateRegularization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRegularization(ctx, manualReg("r1", 2)))

	updated := manualReg("r1", 5)
	updated.ReviewedForDuplicates = true
	require.NoError(t, s.UpdateRegularization(ctx, updated))

	got, err := s.GetRegularization(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, got.ReviewedForDuplicates)

	err = s.UpdateRegularization(ctx, manualReg("ghost", 1))
	assert.ErrorIs(t, err, ledger.ErrRegularizationNotFound)
}

func TestListRegularizationsWindowAndType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRegularization(ctx, manualReg("m1", 2)))
	ret := manualReg("ret1", 4)
	ret.Type = ledger.RegReturn
	ret.Date = ledger.NewDate(2024, time.May, 1)
	require.NoError(t, s.InsertRegularization(ctx, ret))
	old := manualReg("old", 9)
	old.Date = ledger.NewDate(2023, time.April, 10)
	require.NoError(t, s.InsertRegularization(ctx, old))

	got, err := s.ListRegularizations(ctx, "wp-1",
		ledger.NewDate(2024, time.January, 1), ledger.NewDate(2024, time.December, 31))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	returns, err := s.ListRegularizations(ctx, "wp-1",
		ledger.NewDate(2024, time.January, 1), ledger.NewDate(2024, time.December, 31),
		ledger.RegReturn)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "ret1", returns[0].ID)
}

func TestDeleteRegularization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRegularization(ctx, manualReg("r1", 2)))
	require.NoError(t, s.DeleteRegularization(ctx, "r1"))

	got, err := s.GetRegularization(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// TICKET + SYNC RUN STORES
// =============================================================================

func TestUpsertTickets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := ledger.Ticket{
		Key:           "ACME-7",
		WorkPackageID: "wp-1",
		IssueType:     ledger.IssueTypeEvolutivo,
		BillingMode:   "T&M Facturable",
		CreatedDate:   ledger.NewDate(2024, time.February, 1),
		Status:        "Open",
		EstimateHours: decimal.NewFromInt(16),
	}
	require.NoError(t, s.UpsertTickets(ctx, []ledger.Ticket{tk}))
	tk.Status = "Done"
	require.NoError(t, s.UpsertTickets(ctx, []ledger.Ticket{tk}))

	got, err := s.TicketsByWorkPackage(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Done", got[0].Status)
	assert.True(t, got[0].EstimateHours.Equal(decimal.NewFromInt(16)))
}

func TestSyncRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := ledger.SyncRun{
		ID:            "run-1",
		WorkPackageID: "wp-1",
		WindowStart:   ledger.NewDate(2024, time.March, 1),
		WindowEnd:     ledger.NewDate(2024, time.April, 30),
		Status:        ledger.SyncRunning,
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.SaveSyncRun(ctx, run))

	now := time.Now().UTC()
	run.Status = ledger.SyncCompleted
	run.EntriesSynced = 12
	run.CompletedAt = &now
	require.NoError(t, s.SaveSyncRun(ctx, run))

	runs, err := s.ListSyncRuns(ctx, "wp-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.SyncCompleted, runs[0].Status)
	assert.Equal(t, 12, runs[0].EntriesSynced)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestSyncStopFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stopped, err := s.IsSyncStopped(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	require.NoError(t, s.SetSyncStopped(ctx, true))
	stopped, err = s.IsSyncStopped(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)

	require.NoError(t, s.SetSyncStopped(ctx, false))
	stopped, err = s.IsSyncStopped(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestUniqueConstraintDetection(t *testing.T) {
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: regularizations.period_id")))
	assert.True(t, isUniqueConstraintError(errors.New("pq: duplicate key value violates unique constraint")))
	assert.False(t, isUniqueConstraintError(errors.New("no such table")))
	assert.False(t, isUniqueConstraintError(nil))
}
