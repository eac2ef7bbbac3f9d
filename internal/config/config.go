// Package config defines all configuration for the market-making bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/errs"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun       bool               `mapstructure:"dry_run"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	API          APIConfig          `mapstructure:"api"`
	Solver       SolverConfig       `mapstructure:"solver"`
	Merger       MergerConfig       `mapstructure:"merger"`
	Quoter       QuoterConfig       `mapstructure:"quoter"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Scanner      ScannerConfig      `mapstructure:"scanner"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds Polymarket API endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the bot derives them via L1 auth on startup.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
	WSUserURL    string `mapstructure:"ws_user_url"`
	ApiKey       string `mapstructure:"api_key"`
	Secret       string `mapstructure:"secret"`
	Passphrase   string `mapstructure:"passphrase"`
}

// SolverConfig tunes the offset/skew quote-ladder algorithm (see internal/solver).
//
//   - NumLevels: how many price levels to quote on each side of a market.
//   - TickSize: minimum price increment, $0.01 for standard markets.
//   - BaseOffset / MinOffset: starting distance from best-ask, floored at MinOffset.
//   - MaxImbalance: inventory delta at or beyond which the overweight side stops
//     quoting (once that side holds at least OrderSize shares).
//   - OrderSize: base shares per quote level before skew/soft-limit scaling.
//   - SpreadPerLevel: additional cents of offset added per ladder level.
//   - OffsetScaling: multiplies offset growth as inventory skews.
//   - SkewFactor: how strongly inventory imbalance scales quote sizes (overweight
//     side smaller, underweight side larger).
//   - MinProfitMargin: a taker trade needs a combined cost of at most
//     1 - MinProfitMargin (see internal/solver taker logic).
//   - MaxPosition: hard per-token position cap in shares, 0 disables the cap.
type SolverConfig struct {
	NumLevels       int     `mapstructure:"num_levels"`
	TickSize        float64 `mapstructure:"tick_size"`
	BaseOffset      float64 `mapstructure:"base_offset"`
	MinOffset       float64 `mapstructure:"min_offset"`
	MaxImbalance    float64 `mapstructure:"max_imbalance"`
	OrderSize       float64 `mapstructure:"order_size"`
	SpreadPerLevel  float64 `mapstructure:"spread_per_level"`
	OffsetScaling   float64 `mapstructure:"offset_scaling"`
	SkewFactor      float64 `mapstructure:"skew_factor"`
	MinProfitMargin float64 `mapstructure:"min_profit_margin"`
	MaxPosition     float64 `mapstructure:"max_position"`
}

// MergerConfig tunes when the Quoter redeems matched up+down pairs for $1.
//
//   - MinMergeSize: minimum mergeable pair count before a merge is worth the gas.
//   - MaxMergeImbalance: largest absolute inventory delta at which a merge is
//     still allowed; an allowed merge redeems every matched pair.
//   - MinProfitMargin: minimum (1 - combined_avg_cost) required to merge.
//   - Cooldown: minimum time between merge attempts for one market.
type MergerConfig struct {
	MinMergeSize      float64       `mapstructure:"min_merge_size"`
	MaxMergeImbalance float64       `mapstructure:"max_merge_imbalance"`
	MinProfitMargin   float64       `mapstructure:"min_profit_margin"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// QuoterConfig controls the per-market quoting loop lifecycle.
//
//   - TickInterval: how often a Quoter recomputes and reconciles its ladder.
//   - StaleBookTimeout: cancel all resting orders if no book update arrives within this window.
//   - InFlightTTL: how long a pending cancel/placement is tracked before being swept (internal/inflight).
type QuoterConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	StaleBookTimeout time.Duration `mapstructure:"stale_book_timeout"`
	InFlightTTL      time.Duration `mapstructure:"in_flight_ttl"`
	SizeTolerancePct float64       `mapstructure:"size_tolerance_pct"`
	SizeToleranceAbs float64       `mapstructure:"size_tolerance_abs"`
}

// OrchestratorConfig controls the per-(symbol, timeframe) quota that
// bounds how many markets of the same underlying the bot trades
// concurrently, and the two process-wide REST-truth reconcilers
// (internal/reconcile) that converge the shared order and position
// stores against the venue.
type OrchestratorConfig struct {
	MaxMarketsPerSymbol       int           `mapstructure:"max_markets_per_symbol"`
	OrderReconcileInterval    time.Duration `mapstructure:"order_reconcile_interval"`
	PositionReconcileInterval time.Duration `mapstructure:"position_reconcile_interval"`
}

// RiskConfig sets hard limits that trigger order cancellation (kill switch).
//
//   - MaxPositionPerMarket: max USD exposure in any single market.
//   - MaxGlobalExposure: max USD exposure across ALL active markets combined.
//   - MaxMarketsActive: cap on how many markets the bot trades simultaneously.
//   - KillSwitchDropPct: if price moves this % within the window, kill switch fires.
//   - KillSwitchWindowSec: time window for measuring rapid price movement.
//   - MaxDailyLoss: max combined (realized + unrealized) loss before kill switch.
//   - CooldownAfterKill: how long the kill switch stays engaged after firing.
type RiskConfig struct {
	MaxPositionPerMarket float64       `mapstructure:"max_position_per_market"`
	MaxGlobalExposure    float64       `mapstructure:"max_global_exposure"`
	MaxMarketsActive     int           `mapstructure:"max_markets_active"`
	KillSwitchDropPct    float64       `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec  int           `mapstructure:"kill_switch_window_sec"`
	MaxDailyLoss         float64       `mapstructure:"max_daily_loss"`
	CooldownAfterKill    time.Duration `mapstructure:"cooldown_after_kill"`
}

// ScannerConfig controls how the bot discovers and filters tradeable markets.
// The scanner polls the Gamma API and ranks markets by opportunity score:
// score = spread * sqrt(volume24h) * min(liquidity/10000, 1).
type ScannerConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MinLiquidity        float64       `mapstructure:"min_liquidity"`
	MinVolume24h        float64       `mapstructure:"min_volume_24h"`
	MinSpread           float64       `mapstructure:"min_spread"`
	MaxEndDateDays      int           `mapstructure:"max_end_date_days"`
	ExcludeSlugs        []string      `mapstructure:"exclude_slugs"`
	IncludeConditionIDs []string      `mapstructure:"include_condition_ids"`
	IncludeSlugs        []string      `mapstructure:"include_slugs"`
	IncludeKeywords     []string      `mapstructure:"include_keywords"`
	ExcludeKeywords     []string      `mapstructure:"exclude_keywords"`
}

// StoreConfig sets where position data is persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POLY_PRIVATE_KEY, POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if os.Getenv("POLY_DRY_RUN") == "true" || os.Getenv("POLY_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return errs.NewConfig("wallet.private_key", "required (set POLY_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return errs.NewConfig("wallet.chain_id", "required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return errs.NewConfig("wallet.signature_type", "must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return errs.NewConfig("wallet.funder_address", "required when wallet.signature_type is 1 or 2")
	}
	if c.API.CLOBBaseURL == "" {
		return errs.NewConfig("api.clob_base_url", "required")
	}
	if c.Solver.NumLevels <= 0 {
		return errs.NewConfig("solver.num_levels", "must be > 0")
	}
	if c.Solver.TickSize <= 0 {
		return errs.NewConfig("solver.tick_size", "must be > 0")
	}
	if c.Solver.OrderSize <= 0 {
		return errs.NewConfig("solver.order_size", "must be > 0")
	}
	if c.Solver.MaxImbalance <= 0 || c.Solver.MaxImbalance > 1 {
		return errs.NewConfig("solver.max_imbalance", "must be in (0, 1]")
	}
	if c.Merger.MinMergeSize <= 0 {
		return errs.NewConfig("merger.min_merge_size", "must be > 0")
	}
	if c.Quoter.TickInterval <= 0 {
		return errs.NewConfig("quoter.tick_interval", "must be > 0")
	}
	if c.Orchestrator.OrderReconcileInterval <= 0 {
		return errs.NewConfig("orchestrator.order_reconcile_interval", "must be > 0")
	}
	if c.Orchestrator.PositionReconcileInterval <= 0 {
		return errs.NewConfig("orchestrator.position_reconcile_interval", "must be > 0")
	}
	if c.Quoter.StaleBookTimeout <= 0 {
		return errs.NewConfig("quoter.stale_book_timeout", "must be > 0")
	}
	if c.Quoter.InFlightTTL <= 0 {
		return errs.NewConfig("quoter.in_flight_ttl", "must be > 0")
	}
	if c.Scanner.PollInterval <= 0 {
		return errs.NewConfig("scanner.poll_interval", "must be > 0")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		return errs.NewConfig("risk.max_position_per_market", "must be > 0")
	}
	if c.Risk.MaxGlobalExposure <= 0 {
		return errs.NewConfig("risk.max_global_exposure", "must be > 0")
	}
	if c.Risk.MaxMarketsActive <= 0 {
		return errs.NewConfig("risk.max_markets_active", "must be > 0")
	}
	return nil
}
