package api

import (
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
)

// DashboardSnapshot represents the complete dashboard state
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Active markets
	Markets []MarketStatus `json:"markets"`

	// Aggregate P&L
	TotalRealized   float64 `json:"total_realized"`
	TotalUnrealized float64 `json:"total_unrealized"`
	TotalPnL        float64 `json:"total_pnl"`

	// Risk status
	Risk RiskSnapshot `json:"risk"`

	// Redeemable Up/Down pairs across all tracked markets
	MergeOpportunities []MergeOpportunityInfo `json:"merge_opportunities"`

	// Configuration
	Config ConfigSummary `json:"config"`

	// Scanner info
	Scanner ScannerInfo `json:"scanner"`
}

// MarketStatus represents per-market state
type MarketStatus struct {
	ConditionID string `json:"condition_id"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`

	// Book state
	MidPrice    float64   `json:"mid_price"`
	BestBid     float64   `json:"best_bid"`
	BestAsk     float64   `json:"best_ask"`
	Spread      float64   `json:"spread"`
	SpreadBps   float64   `json:"spread_bps"` // Spread in basis points
	LastUpdated time.Time `json:"last_updated"`
	IsStale     bool      `json:"is_stale"`

	// Position
	Position PositionSnapshot `json:"position"`

	// Top of the currently resting maker ladder on each token, nil when no
	// quotes are live on that side (skipped by the solver or not yet placed).
	TopUpQuote   *QuoteInfo `json:"top_up_quote,omitempty"`
	TopDownQuote *QuoteInfo `json:"top_down_quote,omitempty"`

	// Market metadata
	TickSize  float64   `json:"tick_size"`
	EndDate   time.Time `json:"end_date"`
	Liquidity float64   `json:"liquidity"`
	Volume24h float64   `json:"volume_24h"`
}

// PositionSnapshot represents position and P&L for a market
type PositionSnapshot struct {
	UpQty         float64   `json:"up_qty"`
	DownQty       float64   `json:"down_qty"`
	AvgEntryUp    float64   `json:"avg_entry_up"`
	AvgEntryDown  float64   `json:"avg_entry_down"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	ExposureUSD   float64   `json:"exposure_usd"`
	Skew          float64   `json:"skew"` // NetDelta in [-1, 1]
	LastUpdated   time.Time `json:"last_updated"`
}

// QuoteInfo represents a single resting maker order at the top of a ladder.
type QuoteInfo struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	OrderID   string    `json:"order_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MergeOpportunityInfo represents one market's redeemable Up/Down
// pairs: what merging them would pay out net of the estimated fee.
type MergeOpportunityInfo struct {
	ConditionID     string  `json:"condition_id"`
	MergeablePairs  float64 `json:"mergeable_pairs"`
	MergeValue      float64 `json:"merge_value"`
	TotalCost       float64 `json:"total_cost"`
	EstFees         float64 `json:"est_fees"`
	PotentialProfit float64 `json:"potential_profit"`
}

// RiskSnapshot represents aggregate risk metrics
type RiskSnapshot struct {
	// Exposure
	GlobalExposure    float64 `json:"global_exposure"`
	MaxGlobalExposure float64 `json:"max_global_exposure"`
	ExposurePct       float64 `json:"exposure_pct"` // % of max

	// Kill switch
	KillSwitchActive bool      `json:"kill_switch_active"`
	KillSwitchUntil  time.Time `json:"kill_switch_until,omitempty"`
	KillSwitchReason string    `json:"kill_switch_reason,omitempty"`

	// P&L tracking
	TotalRealizedPnL   float64 `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`
	DailyPnL           float64 `json:"daily_pnl"`

	// Limits
	MaxPositionPerMarket float64 `json:"max_position_per_market"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxMarketsActive     int     `json:"max_markets_active"`
	CurrentMarketsActive int     `json:"current_markets_active"`
}

// ConfigSummary represents quoting and risk configuration
type ConfigSummary struct {
	// Solver parameters
	NumLevels       int     `json:"num_levels"`
	BaseOffset      float64 `json:"base_offset"`
	MinOffset       float64 `json:"min_offset"`
	MaxImbalance    float64 `json:"max_imbalance"`
	OrderSize       float64 `json:"order_size"`
	SpreadPerLevel  float64 `json:"spread_per_level"`
	OffsetScaling   float64 `json:"offset_scaling"`
	SkewFactor      float64 `json:"skew_factor"`
	MinProfitMargin float64 `json:"min_profit_margin"`
	MaxPosition     float64 `json:"max_position"`

	// Merger parameters
	MinMergeSize      float64 `json:"min_merge_size"`
	MaxMergeImbalance float64 `json:"max_merge_imbalance"`
	MergeCooldown     string  `json:"merge_cooldown"`

	// Quoter parameters
	TickInterval     string `json:"tick_interval"`
	StaleBookTimeout string `json:"stale_book_timeout"`

	// Risk parameters
	MaxPositionPerMarket float64 `json:"max_position_per_market"`
	MaxGlobalExposure    float64 `json:"max_global_exposure"`
	MaxMarketsActive     int     `json:"max_markets_active"`
	KillSwitchDropPct    float64 `json:"kill_switch_drop_pct"`
	KillSwitchWindowSec  int     `json:"kill_switch_window_sec"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	CooldownAfterKill    string  `json:"cooldown_after_kill"`

	// Scanner parameters
	ScannerPollInterval string  `json:"scanner_poll_interval"`
	MinLiquidity        float64 `json:"min_liquidity"`
	MinVolume24h        float64 `json:"min_volume_24h"`
	MinSpread           float64 `json:"min_spread"`
	MaxEndDateDays      int     `json:"max_end_date_days"`

	// Operational
	DryRun bool `json:"dry_run"`
}

// ScannerInfo represents scanner state
type ScannerInfo struct {
	LastScanTime    time.Time `json:"last_scan_time"`
	MarketsScanned  int       `json:"markets_scanned"`
	MarketsFiltered int       `json:"markets_filtered"`
	MarketsSelected int       `json:"markets_selected"`
}

// NewConfigSummary creates config summary from config
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		// Solver
		NumLevels:       cfg.Solver.NumLevels,
		BaseOffset:      cfg.Solver.BaseOffset,
		MinOffset:       cfg.Solver.MinOffset,
		MaxImbalance:    cfg.Solver.MaxImbalance,
		OrderSize:       cfg.Solver.OrderSize,
		SpreadPerLevel:  cfg.Solver.SpreadPerLevel,
		OffsetScaling:   cfg.Solver.OffsetScaling,
		SkewFactor:      cfg.Solver.SkewFactor,
		MinProfitMargin: cfg.Solver.MinProfitMargin,
		MaxPosition:     cfg.Solver.MaxPosition,

		// Merger
		MinMergeSize:      cfg.Merger.MinMergeSize,
		MaxMergeImbalance: cfg.Merger.MaxMergeImbalance,
		MergeCooldown:     cfg.Merger.Cooldown.String(),

		// Quoter
		TickInterval:     cfg.Quoter.TickInterval.String(),
		StaleBookTimeout: cfg.Quoter.StaleBookTimeout.String(),

		// Risk
		MaxPositionPerMarket: cfg.Risk.MaxPositionPerMarket,
		MaxGlobalExposure:    cfg.Risk.MaxGlobalExposure,
		MaxMarketsActive:     cfg.Risk.MaxMarketsActive,
		KillSwitchDropPct:    cfg.Risk.KillSwitchDropPct,
		KillSwitchWindowSec:  cfg.Risk.KillSwitchWindowSec,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		CooldownAfterKill:    cfg.Risk.CooldownAfterKill.String(),

		// Scanner
		ScannerPollInterval: cfg.Scanner.PollInterval.String(),
		MinLiquidity:        cfg.Scanner.MinLiquidity,
		MinVolume24h:        cfg.Scanner.MinVolume24h,
		MinSpread:           cfg.Scanner.MinSpread,
		MaxEndDateDays:      cfg.Scanner.MaxEndDateDays,

		// Operational
		DryRun: cfg.DryRun,
	}
}
