// Package solver computes the desired quote ladder and taker opportunity
// for one market's Up/Down token pair. Solve is a pure function: given
// the same SolverInput and SolverConfig it always returns the same
// SolverOutput, with no wall-clock, randomness, or I/O. The Quoter
// (internal/quoter) is responsible for everything stateful — timing,
// retries, and execution.
package solver

import (
	"math"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// Solve computes the full quote ladder plus any taker opportunity for a
// market given its current inventory and book snapshots.
func Solve(in types.SolverInput, cfg types.SolverConfig) types.SolverOutput {
	delta := in.Inventory.Delta()
	return types.SolverOutput{
		Ladder: calculateQuotes(delta, in, cfg),
		Taker:  findTakerOpportunity(delta, in, cfg),
	}
}

// calculateQuotes builds the maker-bid ladder for both tokens. Offsets
// widen on the overweight side (passive) and narrow on the needed side
// (aggressive) so inventory rebalances without resorting to market orders.
func calculateQuotes(delta float64, in types.SolverInput, cfg types.SolverConfig) types.QuoteLadder {
	upOffset := math.Max(cfg.BaseOffset*(1.0+delta*cfg.OffsetScaling), cfg.MinOffset)
	downOffset := math.Max(cfg.BaseOffset*(1.0-delta*cfg.OffsetScaling), cfg.MinOffset)

	maxSize := cfg.OrderSize * 3.0
	upSize := clamp(round(cfg.OrderSize*(1.0-delta*cfg.SkewFactor)), types.MinOrderSize, maxSize)
	downSize := clamp(round(cfg.OrderSize*(1.0+delta*cfg.SkewFactor)), types.MinOrderSize, maxSize)

	isBuildingUpFromScratch := math.Abs(in.Inventory.Up.Size) < cfg.OrderSize
	isBuildingDownFromScratch := math.Abs(in.Inventory.Down.Size) < cfg.OrderSize

	skipUp := delta >= cfg.MaxImbalance && !isBuildingUpFromScratch
	skipDown := delta <= -cfg.MaxImbalance && !isBuildingDownFromScratch

	upSizeMultiplier := 1.0
	downSizeMultiplier := 1.0
	if cfg.MaxPosition > 0 {
		upRatio := math.Abs(in.Inventory.Up.Size) / cfg.MaxPosition
		downRatio := math.Abs(in.Inventory.Down.Size) / cfg.MaxPosition

		if upRatio >= 1.0 {
			skipUp = true
		} else if upRatio >= types.SoftLimitThreshold {
			upSizeMultiplier = (1.0 - upRatio) / (1.0 - types.SoftLimitThreshold)
		}

		if downRatio >= 1.0 {
			skipDown = true
		} else if downRatio >= types.SoftLimitThreshold {
			downSizeMultiplier = (1.0 - downRatio) / (1.0 - types.SoftLimitThreshold)
		}
	}

	upSize = math.Max(upSize*upSizeMultiplier, types.MinOrderSize)
	downSize = math.Max(downSize*downSizeMultiplier, types.MinOrderSize)

	var ladder types.QuoteLadder
	if !skipUp && in.UpBook.HasBestAsk {
		ladder.UpQuotes = buildLadder(in.UpTokenID, in.UpBook.BestAsk, upOffset, upSize, cfg)
	}
	if !skipDown && in.DownBook.HasBestAsk {
		ladder.DownQuotes = buildLadder(in.DownTokenID, in.DownBook.BestAsk, downOffset, downSize, cfg)
	}
	return ladder
}

// buildLadder lays out NumLevels bids below bestAsk, each level one
// SpreadPerLevel cent further out, skipping any level that would cross
// the spread or fall below the minimum tradeable price, and keeping
// prices strictly decreasing level-to-level.
func buildLadder(tokenID string, bestAsk, baseOffset, orderSize float64, cfg types.SolverConfig) []types.Quote {
	quotes := make([]types.Quote, 0, cfg.NumLevels)
	var lastPrice float64
	haveLast := false

	for level := 0; level < cfg.NumLevels; level++ {
		levelSpread := float64(level) * (cfg.SpreadPerLevel / 100.0)
		price := roundToTick(bestAsk-baseOffset-levelSpread, cfg.TickSize)

		if price >= bestAsk {
			continue
		}
		if price < 0.01 {
			continue
		}

		if haveLast && price >= lastPrice-tickFloorEpsilon {
			adjusted := roundToTick(lastPrice-cfg.TickSize, cfg.TickSize)
			if adjusted < 0.01 {
				continue
			}
			price = adjusted
		}
		lastPrice = price
		haveLast = true

		quotes = append(quotes, types.Quote{
			TokenID: tokenID,
			Price:   price,
			Size:    orderSize,
			Side:    types.BUY,
			Level:   level,
		})
	}
	return quotes
}

const tickFloorEpsilon = 1e-9

// roundToTick floors price to the nearest tick below it, with a small
// epsilon to absorb float division error (0.47/0.01 = 46.9999... should
// floor to 47, not 46).
func roundToTick(price, tick float64) float64 {
	return math.Floor(price/tick+tickFloorEpsilon) * tick
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v)
}

// findTakerOpportunity looks for immediate-fill liquidity on the
// underweight side that would rebalance inventory while staying
// profitable. Returns nil when inventory is close enough to balanced,
// when the best ask is our own resting order, or when taking it would
// push combined average cost above 1 - MinProfitMargin.
func findTakerOpportunity(delta float64, in types.SolverInput, cfg types.SolverConfig) *types.TakerOrder {
	if math.Abs(delta) < 0.1 {
		return nil
	}
	if delta > 0 {
		return findTaker(in.DownTokenID, in.DownBook, in.Inventory.Up, in.Inventory.Down, cfg)
	}
	return findTaker(in.UpTokenID, in.UpBook, in.Inventory.Down, in.Inventory.Up, cfg)
}

// findTaker evaluates taking the best ask on the needed side. anchorSide
// is the existing position on the side we already hold (used to confirm
// we have an anchor cost to combine against); neededSide is the
// inventory on the token we're considering buying.
func findTaker(tokenID string, book types.BookView, anchorSide, neededSide types.InventorySide, cfg types.SolverConfig) *types.TakerOrder {
	if book.BestAskIsOurs {
		return nil
	}
	if anchorSide.Size <= 0 || anchorSide.AvgPrice <= 0 {
		return nil
	}
	if !book.HasBestAsk {
		return nil
	}

	askPrice := book.BestAsk
	takeSize := math.Min(book.BestAskSize, cfg.OrderSize)

	var newAvg float64
	if neededSide.Size > 0 {
		oldCost := neededSide.Size * neededSide.AvgPrice
		newCost := takeSize * askPrice
		newAvg = (oldCost + newCost) / (neededSide.Size + takeSize)
	} else {
		newAvg = askPrice
	}

	combinedCost := anchorSide.AvgPrice + newAvg
	if combinedCost > 1.0-cfg.MinProfitMargin {
		return nil
	}

	profitMargin := 1.0 - combinedCost
	return &types.TakerOrder{
		TokenID: tokenID,
		Price:   askPrice,
		Size:    takeSize,
		Side:    types.BUY,
		Score:   profitMargin * 100.0,
	}
}
