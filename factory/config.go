/*
Package factory provides JSON to Go correction-model conversion.

PURPOSE:
  Correction models live in the database as serialized JSON so account
  managers can adjust contract rules without code changes. This package
  converts that JSON into validated ledger.CorrectionConfig values,
  rejecting unknown shapes at load time instead of silently passing
  through at evaluation time.

JSON SCHEMA:
  {
    "code": "support-blocks",
    "name": "Support intervention blocks",
    "type": "tiered",
    "tiers": [
      {"max": 0.5, "op": "add", "value": 0},
      {"max": 3.5, "op": "add", "value": 0.25},
      {"max": 999, "op": "add", "value": 0}
    ]
  }

  {"code": "rate-45", "type": "rate_diff", "reference_rate": 65}
  {"code": "times-2", "type": "fixed_factor", "factor": 2}

VALIDATION:
  - type must be one of tiered | rate_diff | fixed_factor
  - tiered: at least one tier, known ops, ascending max order
  - negative factors/rates rejected

USAGE:
  cfg, err := factory.ParseCorrectionConfig(record.ConfigJSON)
  if err != nil {
      // reject the write; stored configs are always valid
  }

SEE ALSO:
  - ledger/correction.go: The evaluator these configs feed
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CorrectionJSON is the serialized form of a correction model's config.
type CorrectionJSON struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`

	// Tiered
	Tiers []TierJSON `json:"tiers,omitempty"`

	// RateDiff
	ReferenceRate *float64 `json:"reference_rate,omitempty"`

	// FixedFactor
	Factor *float64 `json:"factor,omitempty"`
}

// TierJSON is one band of a tiered config.
type TierJSON struct {
	Max   float64 `json:"max"`
	Op    string  `json:"op"` // add, fixed, multiply
	Value float64 `json:"value"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCorrectionConfig validates serialized config into the closed
// tagged-variant type. Unknown shapes fail here, at load time.
func ParseCorrectionConfig(raw string) (ledger.CorrectionConfig, error) {
	var doc CorrectionJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ledger.CorrectionConfig{}, &ledger.ConfigError{Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	return buildConfig(doc)
}

func buildConfig(doc CorrectionJSON) (ledger.CorrectionConfig, error) {
	switch ledger.CorrectionKind(doc.Type) {
	case ledger.KindTiered:
		return buildTiered(doc)
	case ledger.KindRateDiff:
		return buildRateDiff(doc)
	case ledger.KindFixedFactor:
		return buildFixedFactor(doc)
	default:
		return ledger.CorrectionConfig{}, &ledger.ConfigError{
			Code:   doc.Code,
			Reason: fmt.Sprintf("unknown correction type %q", doc.Type),
		}
	}
}

func buildTiered(doc CorrectionJSON) (ledger.CorrectionConfig, error) {
	if len(doc.Tiers) == 0 {
		return ledger.CorrectionConfig{}, &ledger.ConfigError{Code: doc.Code, Reason: "tiered config requires at least one tier"}
	}

	tiers := make([]ledger.Tier, 0, len(doc.Tiers))
	prevMax := decimal.NewFromInt(-1)
	for i, t := range doc.Tiers {
		op := ledger.TierOp(t.Op)
		switch op {
		case ledger.TierAdd, ledger.TierFixed, ledger.TierMultiply:
		default:
			return ledger.CorrectionConfig{}, &ledger.ConfigError{
				Code:   doc.Code,
				Reason: fmt.Sprintf("tier %d: unknown op %q", i, t.Op),
			}
		}

		max := decimal.NewFromFloat(t.Max)
		if !max.GreaterThan(prevMax) {
			return ledger.CorrectionConfig{}, &ledger.ConfigError{
				Code:   doc.Code,
				Reason: fmt.Sprintf("tier %d: max %s not in ascending order", i, max),
			}
		}
		prevMax = max

		tiers = append(tiers, ledger.Tier{
			Max:   max,
			Op:    op,
			Value: decimal.NewFromFloat(t.Value),
		})
	}

	return ledger.CorrectionConfig{Kind: ledger.KindTiered, Tiers: tiers}, nil
}

func buildRateDiff(doc CorrectionJSON) (ledger.CorrectionConfig, error) {
	cfg := ledger.CorrectionConfig{Kind: ledger.KindRateDiff, ReferenceRate: ledger.DefaultReferenceRate}
	if doc.ReferenceRate != nil {
		if *doc.ReferenceRate <= 0 {
			return ledger.CorrectionConfig{}, &ledger.ConfigError{
				Code:   doc.Code,
				Reason: fmt.Sprintf("reference rate must be positive, got %v", *doc.ReferenceRate),
			}
		}
		cfg.ReferenceRate = decimal.NewFromFloat(*doc.ReferenceRate)
	}
	return cfg, nil
}

func buildFixedFactor(doc CorrectionJSON) (ledger.CorrectionConfig, error) {
	cfg := ledger.CorrectionConfig{Kind: ledger.KindFixedFactor, Factor: decimal.NewFromInt(1)}
	if doc.Factor != nil {
		if *doc.Factor < 0 {
			return ledger.CorrectionConfig{}, &ledger.ConfigError{
				Code:   doc.Code,
				Reason: fmt.Sprintf("factor must not be negative, got %v", *doc.Factor),
			}
		}
		cfg.Factor = decimal.NewFromFloat(*doc.Factor)
	}
	return cfg, nil
}

// =============================================================================
// SERIALIZATION - Config back to stored JSON
// =============================================================================

// MarshalCorrectionConfig renders a validated config back to its stored
// JSON form.
func MarshalCorrectionConfig(cfg ledger.CorrectionConfig) (string, error) {
	doc := CorrectionJSON{Type: string(cfg.Kind)}

	switch cfg.Kind {
	case ledger.KindTiered:
		for _, t := range cfg.Tiers {
			max, _ := t.Max.Float64()
			value, _ := t.Value.Float64()
			doc.Tiers = append(doc.Tiers, TierJSON{Max: max, Op: string(t.Op), Value: value})
		}
	case ledger.KindRateDiff:
		if !cfg.ReferenceRate.IsZero() {
			ref, _ := cfg.ReferenceRate.Float64()
			doc.ReferenceRate = &ref
		}
	case ledger.KindFixedFactor:
		if !cfg.Factor.IsZero() {
			factor, _ := cfg.Factor.Float64()
			doc.Factor = &factor
		}
	default:
		return "", &ledger.ConfigError{Reason: fmt.Sprintf("unknown correction kind %q", cfg.Kind)}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CorrectionJSONOf renders a validated config as its schema document,
// without serializing. Used by API responses.
func CorrectionJSONOf(cfg ledger.CorrectionConfig) CorrectionJSON {
	doc := CorrectionJSON{Type: string(cfg.Kind)}
	switch cfg.Kind {
	case ledger.KindTiered:
		for _, t := range cfg.Tiers {
			max, _ := t.Max.Float64()
			value, _ := t.Value.Float64()
			doc.Tiers = append(doc.Tiers, TierJSON{Max: max, Op: string(t.Op), Value: value})
		}
	case ledger.KindRateDiff:
		if !cfg.ReferenceRate.IsZero() {
			ref, _ := cfg.ReferenceRate.Float64()
			doc.ReferenceRate = &ref
		}
	case ledger.KindFixedFactor:
		if !cfg.Factor.IsZero() {
			factor, _ := cfg.Factor.Float64()
			doc.Factor = &factor
		}
	}
	return doc
}

// StandardTieredJSON returns the stored form of the standard support-
// block rounding model. Used by seeding and tests.
func StandardTieredJSON() string {
	out, _ := MarshalCorrectionConfig(ledger.StandardTieredConfig())
	return out
}
