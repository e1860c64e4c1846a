package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func makePeriod(id string, start, end Date, createdAt time.Time) ValidityPeriod {
	return ValidityPeriod{
		ID:            id,
		WorkPackageID: "wp-1",
		Start:         start,
		End:           end,
		TotalQuantity: decimal.NewFromInt(100),
		Rate:          decimal.NewFromInt(65),
		CreatedAt:     createdAt,
	}
}

func TestResolvePeriodNoMatch(t *testing.T) {
	// GIVEN a period covering January only
	periods := []ValidityPeriod{
		makePeriod("p1", NewDate(2024, time.January, 1), NewDate(2024, time.January, 31), time.Now()),
	}

	// WHEN resolving a February date
	_, err := ResolvePeriod(periods, NewDate(2024, time.February, 15), nil)

	// THEN no period covers the date
	if err != ErrNoPeriodForDate {
		t.Fatalf("expected ErrNoPeriodForDate, got %v", err)
	}
}

func TestResolvePeriodBoundariesInclusive(t *testing.T) {
	periods := []ValidityPeriod{
		makePeriod("p1", NewDate(2024, time.January, 1), NewDate(2024, time.June, 30), time.Now()),
	}

	for _, d := range []Date{NewDate(2024, time.January, 1), NewDate(2024, time.June, 30)} {
		got, err := ResolvePeriod(periods, d, nil)
		if err != nil {
			t.Fatalf("date %s: %v", d, err)
		}
		if got.ID != "p1" {
			t.Errorf("date %s resolved to %s", d, got.ID)
		}
	}
}

func TestResolvePeriodOverlapLatestCreatedWins(t *testing.T) {
	// GIVEN two overlapping periods, the second created later
	older := makePeriod("p-old", NewDate(2024, time.January, 1), NewDate(2024, time.December, 31),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := makePeriod("p-new", NewDate(2024, time.June, 1), NewDate(2024, time.December, 31),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	var warnings []*OverlapWarning
	warn := func(w *OverlapWarning) { warnings = append(warnings, w) }

	// WHEN resolving a date both cover
	got, err := ResolvePeriod([]ValidityPeriod{older, newer}, NewDate(2024, time.July, 15), warn)
	if err != nil {
		t.Fatal(err)
	}

	// THEN the most recently created period wins and the overlap is reported
	if got.ID != "p-new" {
		t.Errorf("resolved %s, want p-new", got.ID)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 overlap warning, got %d", len(warnings))
	}
	if warnings[0].Kind != "validity_period" {
		t.Errorf("warning kind = %s", warnings[0].Kind)
	}

	// AND order of the input slice does not change the outcome
	got, err = ResolvePeriod([]ValidityPeriod{newer, older}, NewDate(2024, time.July, 15), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "p-new" {
		t.Errorf("reversed order resolved %s, want p-new", got.ID)
	}
}

func TestResolveAssignmentOpenEnded(t *testing.T) {
	// GIVEN an open-ended assignment starting in March
	a := ModelAssignment{
		ID:            "a1",
		WorkPackageID: "wp-1",
		ModelCode:     "support-blocks",
		Start:         NewDate(2024, time.March, 1),
		CreatedAt:     time.Now(),
	}

	// THEN it covers any date from March on, nothing before
	if got := ResolveAssignment([]ModelAssignment{a}, NewDate(2024, time.February, 28), nil); got != nil {
		t.Errorf("expected no assignment before start, got %s", got.ID)
	}
	if got := ResolveAssignment([]ModelAssignment{a}, NewDate(2030, time.January, 1), nil); got == nil {
		t.Error("expected open-ended assignment to cover far future")
	}
}

func TestValidatePeriodOverlapFindsPairs(t *testing.T) {
	periods := []ValidityPeriod{
		makePeriod("a", NewDate(2024, time.January, 1), NewDate(2024, time.June, 30), time.Now()),
		makePeriod("b", NewDate(2024, time.June, 1), NewDate(2024, time.December, 31), time.Now()),
		makePeriod("c", NewDate(2025, time.January, 1), NewDate(2025, time.June, 30), time.Now()),
	}

	warnings := ValidatePeriodOverlap(periods)

	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].FirstID != "a" || warnings[0].SecondID != "b" {
		t.Errorf("warning pair = %s/%s", warnings[0].FirstID, warnings[0].SecondID)
	}
}

// =============================================================================
// RESOLVER FALLBACK CHAIN
// =============================================================================

// resolverConfig is a minimal in-package ConfigStore for resolver tests.
type resolverConfig struct {
	ConfigStore

	assignments []ModelAssignment
	models      map[string]CorrectionModel
	defaultCode string
}

func (c *resolverConfig) ListAssignments(_ context.Context, _ WorkPackageID) ([]ModelAssignment, error) {
	return c.assignments, nil
}

func (c *resolverConfig) GetModel(_ context.Context, code string) (*CorrectionModel, error) {
	m, ok := c.models[code]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (c *resolverConfig) GetDefaultModel(_ context.Context) (*CorrectionModel, error) {
	if c.defaultCode == "" {
		return nil, nil
	}
	return c.GetModel(context.Background(), c.defaultCode)
}

func TestModelForPrefersAssignment(t *testing.T) {
	// GIVEN an assignment to a named model and a different default
	cfg := &resolverConfig{
		assignments: []ModelAssignment{{
			ID: "a1", WorkPackageID: "wp-1", ModelCode: "support-blocks",
			Start: NewDate(2024, time.January, 1), CreatedAt: time.Now(),
		}},
		models: map[string]CorrectionModel{
			"support-blocks": {Code: "support-blocks", Config: StandardTieredConfig()},
			"identity":       {Code: "identity", Config: PassthroughConfig(), IsDefault: true},
		},
		defaultCode: "identity",
	}
	r := &Resolver{Config: cfg, Logf: func(string, ...any) {}}

	// WHEN resolving a covered date
	model, err := r.ModelFor(context.Background(), "wp-1", NewDate(2024, time.March, 1))
	if err != nil {
		t.Fatal(err)
	}

	// THEN the assigned model wins over the default
	if model.Code != "support-blocks" {
		t.Errorf("resolved %s, want support-blocks", model.Code)
	}
}

func TestModelForFallsBackToDefault(t *testing.T) {
	// GIVEN no assignment covering the date but a default model
	cfg := &resolverConfig{
		models: map[string]CorrectionModel{
			"identity": {Code: "identity", Config: PassthroughConfig(), IsDefault: true},
		},
		defaultCode: "identity",
	}
	r := &Resolver{Config: cfg, Logf: func(string, ...any) {}}

	model, err := r.ModelFor(context.Background(), "wp-1", NewDate(2024, time.March, 1))
	if err != nil {
		t.Fatal(err)
	}
	if model.Code != "identity" {
		t.Errorf("resolved %s, want identity", model.Code)
	}
}

func TestModelForFallsBackToPassthrough(t *testing.T) {
	// GIVEN no assignments and no default model at all
	cfg := &resolverConfig{models: map[string]CorrectionModel{}}
	r := &Resolver{Config: cfg, Logf: func(string, ...any) {}}

	// WHEN resolving
	model, err := r.ModelFor(context.Background(), "wp-1", NewDate(2024, time.March, 1))
	if err != nil {
		t.Fatal(err)
	}

	// THEN corrections pass through rather than failing
	got := ApplyCorrection(decimal.NewFromFloat(3.3), model.Config, CorrectionContext{})
	if !got.Equal(decimal.NewFromFloat(3.3)) {
		t.Errorf("fallback model changed hours to %s", got)
	}
}

func TestModelForMissingAssignedModelUsesDefault(t *testing.T) {
	// GIVEN an assignment referencing a model that no longer exists
	cfg := &resolverConfig{
		assignments: []ModelAssignment{{
			ID: "a1", WorkPackageID: "wp-1", ModelCode: "ghost",
			Start: NewDate(2024, time.January, 1), CreatedAt: time.Now(),
		}},
		models: map[string]CorrectionModel{
			"identity": {Code: "identity", Config: PassthroughConfig(), IsDefault: true},
		},
		defaultCode: "identity",
	}
	r := &Resolver{Config: cfg, Logf: func(string, ...any) {}}

	model, err := r.ModelFor(context.Background(), "wp-1", NewDate(2024, time.June, 1))
	if err != nil {
		t.Fatal(err)
	}
	if model.Code != "identity" {
		t.Errorf("resolved %s, want identity", model.Code)
	}
}
