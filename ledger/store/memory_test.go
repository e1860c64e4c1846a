package store

import (
	"context"
	"testing"

	"github.com/warp/billing-engine/ledger"
)

func TestSaveModelNeverWritesDefaultFlag(t *testing.T) {
	// GIVEN a store with an established default model
	mem := NewMemory()
	ctx := context.Background()

	if err := mem.SaveModel(ctx, ledger.CorrectionModel{Code: "a", Name: "A", Config: ledger.PassthroughConfig()}); err != nil {
		t.Fatal(err)
	}
	if err := mem.SetDefaultModel(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	// WHEN a new model arrives with the default flag set
	if err := mem.SaveModel(ctx, ledger.CorrectionModel{
		Code: "b", Name: "B", Config: ledger.StandardTieredConfig(), IsDefault: true,
	}); err != nil {
		t.Fatal(err)
	}

	// THEN the flag is ignored: "a" stays the single default
	b, err := mem.GetModel(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if b.IsDefault {
		t.Error("save must not grant the default flag")
	}

	// AND re-saving the current default does not clear it
	if err := mem.SaveModel(ctx, ledger.CorrectionModel{Code: "a", Name: "A2", Config: ledger.PassthroughConfig()}); err != nil {
		t.Fatal(err)
	}
	def, err := mem.GetDefaultModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if def == nil || def.Code != "a" {
		t.Errorf("default after re-save = %+v, want model a", def)
	}
}
