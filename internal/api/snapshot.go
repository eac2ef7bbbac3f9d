package api

import (
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/risk"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// MarketSnapshotProvider provides snapshot access to market state
type MarketSnapshotProvider interface {
	GetMarketsSnapshot() []MarketStatus
	GetScanStats() types.ScanStats
	GetRiskManager() *risk.Manager
	GetMergeOpportunities() []types.MergeOpportunity
}

// BuildSnapshot aggregates state from all components into a dashboard snapshot
func BuildSnapshot(
	provider MarketSnapshotProvider,
	cfg config.Config,
) DashboardSnapshot {
	// Get market snapshots
	markets := provider.GetMarketsSnapshot()

	// Get risk snapshot
	riskMgr := provider.GetRiskManager()
	riskSnap := riskMgr.GetRiskSnapshot()

	// Calculate aggregate P&L
	var totalRealized, totalUnrealized float64
	for _, m := range markets {
		totalRealized += m.Position.RealizedPnL
		totalUnrealized += m.Position.UnrealizedPnL
	}

	// Get scanner info
	scanStats := provider.GetScanStats()
	scannerInfo := ScannerInfo{
		LastScanTime:    scanStats.LastScanTime,
		MarketsScanned:  scanStats.MarketsScanned,
		MarketsFiltered: scanStats.MarketsFiltered,
		MarketsSelected: len(markets),
	}

	return DashboardSnapshot{
		Timestamp:          time.Now(),
		Markets:            markets,
		TotalRealized:      totalRealized,
		TotalUnrealized:    totalUnrealized,
		TotalPnL:           totalRealized + totalUnrealized,
		Risk:               convertRiskSnapshot(riskSnap),
		MergeOpportunities: convertMergeOpportunities(provider.GetMergeOpportunities()),
		Config:             NewConfigSummary(cfg),
		Scanner:            scannerInfo,
	}
}

// convertMergeOpportunities converts tracker merge opportunities to API format.
func convertMergeOpportunities(opps []types.MergeOpportunity) []MergeOpportunityInfo {
	out := make([]MergeOpportunityInfo, len(opps))
	for i, o := range opps {
		out[i] = MergeOpportunityInfo{
			ConditionID:     o.ConditionID,
			MergeablePairs:  o.MergeablePairs,
			MergeValue:      o.MergeValue,
			TotalCost:       o.TotalCost,
			EstFees:         o.EstFees,
			PotentialProfit: o.PotentialProfit,
		}
	}
	return out
}

// convertRiskSnapshot converts internal risk snapshot to API format
func convertRiskSnapshot(snap risk.RiskSnapshot) RiskSnapshot {
	return RiskSnapshot{
		GlobalExposure:       snap.GlobalExposure,
		MaxGlobalExposure:    snap.MaxGlobalExposure,
		ExposurePct:          snap.ExposurePct,
		KillSwitchActive:     snap.KillSwitchActive,
		KillSwitchUntil:      snap.KillSwitchUntil,
		KillSwitchReason:     snap.KillSwitchReason,
		TotalRealizedPnL:     snap.TotalRealizedPnL,
		TotalUnrealizedPnL:   snap.TotalUnrealizedPnL,
		DailyPnL:             snap.DailyPnL,
		MaxPositionPerMarket: snap.MaxPositionPerMarket,
		MaxDailyLoss:         snap.MaxDailyLoss,
		MaxMarketsActive:     snap.MaxMarketsActive,
		CurrentMarketsActive: snap.CurrentMarketsActive,
	}
}
