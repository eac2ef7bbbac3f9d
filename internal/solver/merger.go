package solver

import (
	"fmt"
	"math"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

const mergeEpsilon = 1e-9

// Merger is a stateless decision function for when to redeem matched
// Up+Down pairs for $1. It holds only config, never market state, so it
// can be reused across every market a Quoter manages.
type Merger struct {
	cfg types.MergerConfig
}

// NewMerger builds a Merger from config.
func NewMerger(cfg types.MergerConfig) *Merger {
	return &Merger{cfg: cfg}
}

// CheckMerge evaluates whether the given inventory should be merged,
// and if so how many pairs and at what expected profit.
func (m *Merger) CheckMerge(inv types.Inventory) types.MergeDecision {
	delta := inv.Delta()
	pairs := pairsAvailable(inv)
	combinedCost := combinedAvgCost(inv)

	if pairs < m.cfg.MinMergeSize {
		return types.NoMerge(fmt.Sprintf("not enough pairs: %.1f < %.1f", pairs, m.cfg.MinMergeSize))
	}
	if math.Abs(delta) > m.cfg.MaxMergeImbalance {
		return types.NoMerge(fmt.Sprintf("imbalance too high: %.3f > %.3f", math.Abs(delta), m.cfg.MaxMergeImbalance))
	}
	if combinedCost >= m.cfg.MaxCombinedCost-mergeEpsilon {
		return types.NoMerge(fmt.Sprintf("not profitable: combined %.4f >= max %.4f", combinedCost, m.cfg.MaxCombinedCost))
	}

	profitPerPair := 1.0 - combinedCost
	totalProfit := pairs * profitPerPair
	return types.MergeDecision{
		ShouldMerge:    true,
		PairsToMerge:   pairs,
		ExpectedProfit: totalProfit,
		Reason:         fmt.Sprintf("merge %.1f pairs for $%.4f profit", pairs, totalProfit),
	}
}

// pairsAvailable returns the number of complete Up+Down pairs held —
// only the smaller side can actually be redeemed for $1.
func pairsAvailable(inv types.Inventory) float64 {
	return math.Min(inv.Up.Size, inv.Down.Size)
}

// combinedAvgCost is the sum of per-share average costs across both
// tokens; a merge is profitable only when this is below $1.
func combinedAvgCost(inv types.Inventory) float64 {
	return inv.Up.AvgPrice + inv.Down.AvgPrice
}
