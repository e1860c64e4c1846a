package factory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/ledger"
)

func TestParseTieredConfig(t *testing.T) {
	// GIVEN a valid tiered document
	raw := `{
		"code": "support-blocks",
		"type": "tiered",
		"tiers": [
			{"max": 0.5, "op": "add", "value": 0},
			{"max": 3.5, "op": "add", "value": 0.25},
			{"max": 8.5, "op": "fixed", "value": 8.5}
		]
	}`

	// WHEN parsed
	cfg, err := ParseCorrectionConfig(raw)
	if err != nil {
		t.Fatal(err)
	}

	// THEN the closed variant carries the bands in order
	if cfg.Kind != ledger.KindTiered {
		t.Fatalf("kind = %s", cfg.Kind)
	}
	if len(cfg.Tiers) != 3 {
		t.Fatalf("got %d tiers, want 3", len(cfg.Tiers))
	}
	if cfg.Tiers[1].Op != ledger.TierAdd || !cfg.Tiers[1].Value.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("tier 1 = %+v", cfg.Tiers[1])
	}
	if cfg.Tiers[2].Op != ledger.TierFixed {
		t.Errorf("tier 2 op = %s", cfg.Tiers[2].Op)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"type": `},
		{"unknown type", `{"type": "percentile"}`},
		{"missing type", `{"code": "x"}`},
		{"tiered without tiers", `{"type": "tiered"}`},
		{"unknown tier op", `{"type": "tiered", "tiers": [{"max": 5, "op": "divide", "value": 2}]}`},
		{"non-ascending max", `{"type": "tiered", "tiers": [{"max": 5, "op": "add", "value": 0}, {"max": 3, "op": "add", "value": 1}]}`},
		{"duplicate max", `{"type": "tiered", "tiers": [{"max": 5, "op": "add", "value": 0}, {"max": 5, "op": "add", "value": 1}]}`},
		{"zero reference rate", `{"type": "rate_diff", "reference_rate": 0}`},
		{"negative reference rate", `{"type": "rate_diff", "reference_rate": -65}`},
		{"negative factor", `{"type": "fixed_factor", "factor": -1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCorrectionConfig(tc.raw)
			if err == nil {
				t.Fatal("expected rejection")
			}
			var cfgErr *ledger.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T", err)
			}
		})
	}
}

func TestParseRateDiffDefaultsReference(t *testing.T) {
	// GIVEN a rate-diff document without a reference rate
	cfg, err := ParseCorrectionConfig(`{"type": "rate_diff"}`)
	if err != nil {
		t.Fatal(err)
	}

	// THEN the standard reference rate fills in
	if !cfg.ReferenceRate.Equal(ledger.DefaultReferenceRate) {
		t.Errorf("reference = %s, want %s", cfg.ReferenceRate, ledger.DefaultReferenceRate)
	}
}

func TestParseFixedFactorDefaultsToIdentity(t *testing.T) {
	cfg, err := ParseCorrectionConfig(`{"type": "fixed_factor"}`)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Factor.Equal(decimal.NewFromInt(1)) {
		t.Errorf("factor = %s, want 1", cfg.Factor)
	}
}

func TestMarshalParseRoundtrip(t *testing.T) {
	// GIVEN the standard tiered model
	original := ledger.StandardTieredConfig()

	// WHEN serialized and parsed back
	raw, err := MarshalCorrectionConfig(original)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseCorrectionConfig(raw)
	if err != nil {
		t.Fatal(err)
	}

	// THEN both configs correct identically across the bands
	for _, hours := range []float64{0.25, 2.0, 3.5, 6.0, 8.0, 12.0} {
		d := decimal.NewFromFloat(hours)
		want := ledger.ApplyCorrection(d, original, ledger.CorrectionContext{})
		got := ledger.ApplyCorrection(d, parsed, ledger.CorrectionContext{})
		if !got.Equal(want) {
			t.Errorf("hours %v: parsed config corrects to %s, original to %s", hours, got, want)
		}
	}
}

func TestMarshalRejectsUnknownKind(t *testing.T) {
	_, err := MarshalCorrectionConfig(ledger.CorrectionConfig{Kind: "percentile"})
	if err == nil {
		t.Fatal("expected rejection")
	}
}

func TestStandardTieredJSONParses(t *testing.T) {
	cfg, err := ParseCorrectionConfig(StandardTieredJSON())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != ledger.KindTiered || len(cfg.Tiers) == 0 {
		t.Errorf("standard document parsed to %+v", cfg)
	}
}
