package solver

import (
	"testing"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func defaultMergerConfig() types.MergerConfig {
	return types.NewMergerConfig(10.0, 0.3, 0.01)
}

func TestCheckMergeApprovesProfitableBalancedPair(t *testing.T) {
	m := NewMerger(defaultMergerConfig())
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 100, AvgPrice: 0.45},
		Down: types.InventorySide{Size: 100, AvgPrice: 0.48},
	}
	d := m.CheckMerge(inv)

	if !d.ShouldMerge {
		t.Fatalf("expected merge to be approved, got %+v", d)
	}
	if d.PairsToMerge != 100 {
		t.Fatalf("PairsToMerge = %v, want 100", d.PairsToMerge)
	}
	wantProfit := 100 * (1.0 - 0.93)
	if diff := d.ExpectedProfit - wantProfit; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("ExpectedProfit = %v, want %v", d.ExpectedProfit, wantProfit)
	}
}

func TestCheckMergeRejectsBelowMinSize(t *testing.T) {
	m := NewMerger(defaultMergerConfig())
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 5, AvgPrice: 0.40},
		Down: types.InventorySide{Size: 5, AvgPrice: 0.45},
	}
	d := m.CheckMerge(inv)
	if d.ShouldMerge {
		t.Fatalf("5 pairs is below MinMergeSize 10, should reject: %+v", d)
	}
}

func TestCheckMergeRejectsHighImbalance(t *testing.T) {
	m := NewMerger(defaultMergerConfig())
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 100, AvgPrice: 0.40},
		Down: types.InventorySide{Size: 10, AvgPrice: 0.45},
	}
	d := m.CheckMerge(inv)
	if d.ShouldMerge {
		t.Fatalf("imbalance of (100-10)/110=0.82 exceeds MaxMergeImbalance 0.3, should reject: %+v", d)
	}
}

func TestCheckMergeRejectsUnprofitableCombinedCost(t *testing.T) {
	m := NewMerger(defaultMergerConfig())
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 100, AvgPrice: 0.55},
		Down: types.InventorySide{Size: 100, AvgPrice: 0.50},
	}
	d := m.CheckMerge(inv)
	if d.ShouldMerge {
		t.Fatalf("combined cost 1.05 exceeds MaxCombinedCost, should reject: %+v", d)
	}
}

func TestCheckMergeRejectsAtExactMaxCombinedCostBoundary(t *testing.T) {
	cfg := defaultMergerConfig()
	m := NewMerger(cfg)
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 100, AvgPrice: cfg.MaxCombinedCost / 2},
		Down: types.InventorySide{Size: 100, AvgPrice: cfg.MaxCombinedCost / 2},
	}
	d := m.CheckMerge(inv)
	if d.ShouldMerge {
		t.Fatalf("combined cost exactly at MaxCombinedCost should be rejected (not strictly below): %+v", d)
	}
}

func TestPairsAvailableUsesSmallerSide(t *testing.T) {
	inv := types.Inventory{
		Up:   types.InventorySide{Size: 80},
		Down: types.InventorySide{Size: 120},
	}
	if p := pairsAvailable(inv); p != 80 {
		t.Fatalf("pairsAvailable = %v, want 80 (min of both sides)", p)
	}
}
