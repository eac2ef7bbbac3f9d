package types

import "time"

// PriceKey quantizes a decimal price in [0, 1] to an integer basis-cent
// key so that price-level equality never drifts through float comparison.
// key(p) = round(clamp(p, 0, 1) * 10_000).
func PriceKey(price float64) int64 {
	if price < 0 {
		price = 0
	}
	if price > 1 {
		price = 1
	}
	return int64(price*10000 + 0.5)
}

// KeyToPrice converts a price-key back to a decimal price.
func KeyToPrice(key int64) float64 {
	return float64(key) / 10000.0
}

// FillStatus is the lifecycle status of an observed trade.
type FillStatus string

const (
	FillMatched  FillStatus = "MATCHED"
	FillMined    FillStatus = "MINED"
	FillRetrying FillStatus = "RETRYING"
	FillFailed   FillStatus = "FAILED"
)

// OrderStatus is the lifecycle status of a resting order in the Order
// State Store. Transitions are monotonic except that Filled/Cancelled
// are terminal.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// TrackedOrder is the in-memory representation of a resting order kept
// by the Order State Store. Distinct from OpenOrder (the raw REST
// wire shape, all-string) so the store and diff algorithm operate on
// typed, ready-to-compare fields.
type TrackedOrder struct {
	OrderID      string
	TokenID      string
	Side         Side
	Price        float64
	OriginalSize float64
	MatchedSize  float64
	Status       OrderStatus
	CreatedAt    time.Time // queue-priority tiebreaker, never order-id
}

// Remaining returns the unfilled size of the order.
func (o TrackedOrder) Remaining() float64 {
	return o.OriginalSize - o.MatchedSize
}

// Fill is a single observed trade execution, carrying enough identity
// to be deduplicated by (TradeID, Status).
type Fill struct {
	TradeID   string
	TokenID   string
	Side      Side
	Price     float64
	Size      float64
	Fee       float64
	Status    FillStatus
	Timestamp time.Time
}

// Quote is a single desired price level emitted by the Solver for one
// token. Side is always Buy: the Solver only ever proposes maker bids.
type Quote struct {
	TokenID string
	Price   float64
	Size    float64
	Side    Side
	Level   int
}

// TakerOrder is an aggressive order the Solver proposes to immediately
// cross the book on the underweight side.
type TakerOrder struct {
	TokenID string
	Price   float64
	Size    float64
	Side    Side
	Score   float64 // (1 - combined_cost) * 100; higher is better
}

// QuoteLadder is the Solver's desired maker-bid output for one market's
// two tokens.
type QuoteLadder struct {
	UpQuotes   []Quote
	DownQuotes []Quote
}

// InventorySide is one token's holdings as seen by the Solver — a
// read-only projection of positions.Position, kept separate so the
// Solver package has no dependency on the positions store.
type InventorySide struct {
	Size     float64
	AvgPrice float64
}

// Inventory is the up/down inventory snapshot the Solver reads.
type Inventory struct {
	Up   InventorySide
	Down InventorySide
}

// Delta returns the signed inventory imbalance in [-1, 1]: +1 pure-up,
// -1 pure-down, 0 balanced.
func (inv Inventory) Delta() float64 {
	total := inv.Up.Size + inv.Down.Size
	if total == 0 {
		return 0
	}
	return (inv.Up.Size - inv.Down.Size) / total
}

// BookView is the minimal read-only order-book projection the Solver
// needs: best_ask on each side (Solver never quotes from the bid side).
type BookView struct {
	BestAsk       float64
	BestAskSize   float64
	HasBestAsk    bool
	BestAskIsOurs bool
}

// SolverConfig tunes the offset/skew quote-ladder algorithm.
type SolverConfig struct {
	NumLevels       int
	TickSize        float64 // $0.01
	BaseOffset      float64
	MinOffset       float64
	MaxImbalance    float64 // (0, 1]
	OrderSize       float64
	SpreadPerLevel  float64 // cents
	OffsetScaling   float64
	SkewFactor      float64
	MinProfitMargin float64
	MaxPosition     float64 // 0 = unlimited
}

const (
	MinOrderSize       = 5.0
	SoftLimitThreshold = 0.80
)

// SolverInput bundles everything Solve needs to be a pure function of.
type SolverInput struct {
	UpTokenID   string
	DownTokenID string
	UpBook      BookView
	DownBook    BookView
	Inventory   Inventory
}

// SolverOutput is the full result of one Solve call.
type SolverOutput struct {
	Ladder QuoteLadder
	Taker  *TakerOrder
}

// MergerConfig tunes the merge-opportunity decision.
type MergerConfig struct {
	MinMergeSize      float64
	MaxMergeImbalance float64
	MinProfitMargin   float64
	MaxCombinedCost   float64 // derived: 1 - MinProfitMargin, unless overridden
}

// DefaultMergerConfig mirrors the original implementation's Default
// (min_merge_size=10, max_merge_imbalance=0.3, min_profit_margin=0.01).
func DefaultMergerConfig() MergerConfig {
	return NewMergerConfig(10.0, 0.3, 0.01)
}

// NewMergerConfig derives MaxCombinedCost from MinProfitMargin.
func NewMergerConfig(minMergeSize, maxMergeImbalance, minProfitMargin float64) MergerConfig {
	return MergerConfig{
		MinMergeSize:      minMergeSize,
		MaxMergeImbalance: maxMergeImbalance,
		MinProfitMargin:   minProfitMargin,
		MaxCombinedCost:   1.0 - minProfitMargin,
	}
}

// MergeDecision is the Merger's verdict for one market's inventory.
type MergeDecision struct {
	ShouldMerge    bool
	PairsToMerge   float64
	ExpectedProfit float64
	Reason         string
}

// NoMerge builds a negative MergeDecision with an explanation.
func NoMerge(reason string) MergeDecision {
	return MergeDecision{Reason: reason}
}

// ScanStats summarizes the most recent completed market scan, for the
// dashboard.
type ScanStats struct {
	LastScanTime    time.Time
	MarketsScanned  int
	MarketsFiltered int
	MarketsSelected int
}

// MergeOpportunity describes one condition's redeemable up+down pairs,
// the Position Tracker's read-only projection for dashboards/taker
// logic (distinct from MergeDecision, which is the Merger's stateful
// go/no-go call used by the Quoter). PotentialProfit is net of EstFees.
type MergeOpportunity struct {
	ConditionID     string
	MergeablePairs  float64
	MergeValue      float64
	TotalCost       float64
	EstFees         float64
	PotentialProfit float64
}
