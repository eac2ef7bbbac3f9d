// Package positions is the process-wide Position Tracker: per-token
// holdings, average cost, fees, and realized PnL accumulated from
// observed fills, shared by every Quoter for the lifetime of the
// process. Markets register their Up/Down token pair on start, which
// both routes incoming fills to the right market's position and feeds
// the merge-opportunity index. Fills are deduplicated at trade level,
// since the user WebSocket feed can redeliver the same trade while a
// connection is recovering.
package positions

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// maxSeenFills bounds the dedup set so a long-lived process doesn't
// leak memory; old entries are evicted oldest-first once the cap is hit.
const maxSeenFills = 4096

// estMergeFeeUSD is the flat relayer gas estimate charged per merge
// transaction, subtracted from a merge opportunity's headline profit.
const estMergeFeeUSD = 0.10

// Position is one market's current holdings, serialized for
// persistence across restarts.
type Position struct {
	UpQty         float64   `json:"up_qty"`
	DownQty       float64   `json:"down_qty"`
	AvgEntryUp    float64   `json:"avg_entry_up"`
	AvgEntryDown  float64   `json:"avg_entry_down"`
	CostBasisUp   float64   `json:"cost_basis_up"`
	CostBasisDown float64   `json:"cost_basis_down"`
	Fees          float64   `json:"fees"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	LastUpdated   time.Time `json:"last_updated"`
}

type fillKey struct {
	tradeID string
	status  types.FillStatus
}

// pairLink records one registered market's Up/Down token pairing.
type pairLink struct {
	conditionID string
	upToken     string
	downToken   string
}

// Tracker holds every market's position. Exclusive-write via the
// reconciler and fill ingestion, many concurrent readers (Quoters,
// risk, dashboard), so it is RWMutex-protected.
type Tracker struct {
	mu sync.RWMutex

	byMarket map[string]*Position // conditionID -> position
	pairs    map[string]pairLink  // conditionID -> token pairing
	byToken  map[string]string    // tokenID -> conditionID

	seen    map[fillKey]struct{}
	seenOrd []fillKey // insertion order, for bounded eviction
}

// New creates an empty process-wide position tracker.
func New() *Tracker {
	return &Tracker{
		byMarket: make(map[string]*Position),
		pairs:    make(map[string]pairLink),
		byToken:  make(map[string]string),
		seen:     make(map[fillKey]struct{}),
	}
}

// RegisterPair records a market's Up/Down token pairing, creating its
// position slot if absent. Fills for either token route to this
// market's position from then on; the pair also becomes visible to
// MergeOpportunities. Registering the same pair again is a no-op.
func (t *Tracker) RegisterPair(upToken, downToken, conditionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pairs[conditionID] = pairLink{conditionID: conditionID, upToken: upToken, downToken: downToken}
	t.byToken[upToken] = conditionID
	t.byToken[downToken] = conditionID
	if _, ok := t.byMarket[conditionID]; !ok {
		t.byMarket[conditionID] = &Position{}
	}
}

// ApplyFill processes a fill, updating quantities, average cost, and
// realized PnL. Duplicate (TradeID, Status) pairs, a redelivered
// WebSocket trade event, are ignored. Only MATCHED fills mutate the
// position: MINED/RETRYING/FAILED echoes of the same trade are
// observed for dedup but change nothing, since a trade can surface
// several times on its way through settlement. Fills for tokens no
// market has registered are dropped.
func (t *Tracker) ApplyFill(f types.Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := fillKey{tradeID: f.TradeID, status: f.Status}
	if _, dup := t.seen[key]; dup {
		return
	}
	t.recordSeen(key)

	if f.Status != types.FillMatched {
		return
	}

	conditionID, ok := t.byToken[f.TokenID]
	if !ok {
		return
	}
	pos := t.byMarket[conditionID]
	link := t.pairs[conditionID]

	if f.TokenID == link.upToken {
		applySide(f, pos, &pos.UpQty, &pos.AvgEntryUp, &pos.CostBasisUp)
	} else {
		applySide(f, pos, &pos.DownQty, &pos.AvgEntryDown, &pos.CostBasisDown)
	}

	pos.Fees += f.Fee
	pos.LastUpdated = time.Now()
}

func (t *Tracker) recordSeen(key fillKey) {
	t.seen[key] = struct{}{}
	t.seenOrd = append(t.seenOrd, key)
	if len(t.seenOrd) > maxSeenFills {
		oldest := t.seenOrd[0]
		t.seenOrd = t.seenOrd[1:]
		delete(t.seen, oldest)
	}
}

func applySide(f types.Fill, pos *Position, qty, avgEntry, costBasis *float64) {
	if f.Side == types.BUY {
		totalCost := *avgEntry**qty + f.Price*f.Size
		*qty += f.Size
		*costBasis += f.Price*f.Size + f.Fee
		if *qty > 0 {
			*avgEntry = totalCost / *qty
		}
		return
	}

	if *qty > 0 {
		sellQty := math.Min(f.Size, *qty)
		pos.RealizedPnL += (f.Price-*avgEntry)*sellQty - f.Fee
	}
	*qty -= f.Size
	if *qty <= 0 {
		*qty = 0
		*avgEntry = 0
		*costBasis = 0
	}
}

// Snapshot returns a copy of one market's current position; a zero
// Position if the market is unknown.
func (t *Tracker) Snapshot(conditionID string) Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if pos, ok := t.byMarket[conditionID]; ok {
		return *pos
	}
	return Position{}
}

// SetPosition restores a market's position from persistence or REST truth.
func (t *Tracker) SetPosition(conditionID string, pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := pos
	t.byMarket[conditionID] = &p
}

// Tokens returns every registered token ID, the iteration domain for
// the position reconciler's REST-truth overwrite.
func (t *Tracker) Tokens() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byToken))
	for tok := range t.byToken {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// TokenQty returns the locally tracked quantity for one token, zero if
// the token is unregistered.
func (t *Tracker) TokenQty(tokenID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conditionID, ok := t.byToken[tokenID]
	if !ok {
		return 0
	}
	pos := t.byMarket[conditionID]
	if tokenID == t.pairs[conditionID].upToken {
		return pos.UpQty
	}
	return pos.DownQty
}

// SetTokenQty overwrites one token's quantity from REST truth.
func (t *Tracker) SetTokenQty(tokenID string, qty float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conditionID, ok := t.byToken[tokenID]
	if !ok {
		return
	}
	pos := t.byMarket[conditionID]
	if tokenID == t.pairs[conditionID].upToken {
		pos.UpQty = qty
	} else {
		pos.DownQty = qty
	}
	pos.LastUpdated = time.Now()
}

// Inventory projects one market's position into the read-only shape
// the Solver and Merger consume.
func (t *Tracker) Inventory(conditionID string) types.Inventory {
	pos := t.Snapshot(conditionID)
	return types.Inventory{
		Up:   types.InventorySide{Size: pos.UpQty, AvgPrice: pos.AvgEntryUp},
		Down: types.InventorySide{Size: pos.DownQty, AvgPrice: pos.AvgEntryDown},
	}
}

// NetDelta returns one market's inventory skew in [-1, 1]. +1 fully
// Up, -1 fully Down.
func (t *Tracker) NetDelta(conditionID string) float64 {
	return t.Inventory(conditionID).Delta()
}

// TotalExposureUSD returns the dollar value of one market's holdings
// at midPrice (Up is worth midPrice, Down is worth 1 - midPrice).
func (t *Tracker) TotalExposureUSD(conditionID string, midPrice float64) float64 {
	pos := t.Snapshot(conditionID)
	return pos.UpQty*midPrice + pos.DownQty*(1-midPrice)
}

// UpdateMarkToMarket recalculates one market's unrealized PnL from the
// current mid price.
func (t *Tracker) UpdateMarkToMarket(conditionID string, midPrice float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.byMarket[conditionID]
	if !ok {
		return
	}
	upUnreal := pos.UpQty * (midPrice - pos.AvgEntryUp)
	downUnreal := pos.DownQty * ((1 - midPrice) - pos.AvgEntryDown)
	pos.UnrealizedPnL = upUnreal + downUnreal
}

// MergeOpportunities reports the redeemable pairs across every
// registered market: each entry's PotentialProfit is what merging the
// matched Up/Down holdings would return after the estimated merge fee.
// Markets with no complete pair are omitted. Independent of the
// Merger's cooldown and imbalance policy — a read-only query for
// the dashboard, sorted by condition ID for stable output.
func (t *Tracker) MergeOpportunities() []types.MergeOpportunity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conditionIDs := make([]string, 0, len(t.pairs))
	for id := range t.pairs {
		conditionIDs = append(conditionIDs, id)
	}
	sort.Strings(conditionIDs)

	var out []types.MergeOpportunity
	for _, id := range conditionIDs {
		pos := t.byMarket[id]
		pairs := math.Min(pos.UpQty, pos.DownQty)
		if pairs <= 0 {
			continue
		}
		cost := pos.AvgEntryUp + pos.AvgEntryDown
		mergeValue := pairs * 1.0
		totalCost := pairs * cost
		out = append(out, types.MergeOpportunity{
			ConditionID:     id,
			MergeablePairs:  pairs,
			MergeValue:      mergeValue,
			TotalCost:       totalCost,
			EstFees:         estMergeFeeUSD,
			PotentialProfit: mergeValue - totalCost - estMergeFeeUSD,
		})
	}
	return out
}
