// Package book maintains a local order-book mirror for one token,
// keyed by integer price-key (see pkg/types.PriceKey) so level lookups
// and best-bid/ask never drift through float comparison. It is built
// from a REST snapshot and kept current by streamed deltas.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// Level is one resting price level.
type Level struct {
	Price float64
	Size  float64
}

// Book is a concurrency-safe ladder for a single token: bids sorted
// descending, asks sorted ascending. Levels are stored in a map keyed
// by price-key for O(1) point updates, with a sorted key slice kept
// alongside for ordered best-of-book reads.
type Book struct {
	mu sync.RWMutex

	tokenID string

	bidLevels map[int64]float64
	askLevels map[int64]float64
	bidKeys   []int64 // descending
	askKeys   []int64 // ascending

	ourBidKeys map[int64]bool // price levels where we have a resting order
	ourAskKeys map[int64]bool

	hash    string
	updated time.Time
}

// New creates an empty Book for one token.
func New(tokenID string) *Book {
	return &Book{
		tokenID:    tokenID,
		bidLevels:  make(map[int64]float64),
		askLevels:  make(map[int64]float64),
		ourBidKeys: make(map[int64]bool),
		ourAskKeys: make(map[int64]bool),
	}
}

// ApplySnapshot replaces the entire ladder from a full snapshot (REST
// GetOrderBook response or a WebSocket "book" event).
func (b *Book) ApplySnapshot(bids, asks []types.PriceLevel, hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bidLevels = make(map[int64]float64, len(bids))
	b.askLevels = make(map[int64]float64, len(asks))

	for _, lvl := range bids {
		price := parseDecimal(lvl.Price)
		size := parseDecimal(lvl.Size)
		if size > 0 {
			b.bidLevels[types.PriceKey(price)] = size
		}
	}
	for _, lvl := range asks {
		price := parseDecimal(lvl.Price)
		size := parseDecimal(lvl.Size)
		if size > 0 {
			b.askLevels[types.PriceKey(price)] = size
		}
	}

	b.rebuildKeysLocked()
	b.hash = hash
	b.updated = time.Now()
}

// ApplyDelta patches a single price level from one entry of a
// price_change event. A size of zero removes the level entirely; any other size
// replaces it. side is "BUY" (bid) or "SELL" (ask).
func (b *Book) ApplyDelta(price, size float64, side string, hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := types.PriceKey(price)
	levels := b.bidLevels
	if side == string(types.SELL) {
		levels = b.askLevels
	}

	if size <= 0 {
		delete(levels, key)
	} else {
		levels[key] = size
	}

	b.rebuildKeysLocked()
	b.hash = hash
	b.updated = time.Now()
}

// MarkOurs records that we have a resting order at price on the given
// side, so the Solver's BestAskIsOurs check can see it. Call this when
// the Order State Store confirms a placement; clear it on cancel/fill.
func (b *Book) MarkOurs(price float64, side types.Side, ours bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := types.PriceKey(price)
	set := b.ourBidKeys
	if side == types.SELL {
		set = b.ourAskKeys
	}
	if ours {
		set[key] = true
	} else {
		delete(set, key)
	}
}

func (b *Book) rebuildKeysLocked() {
	b.bidKeys = keysDescending(b.bidLevels)
	b.askKeys = keysAscending(b.askLevels)
}

func keysDescending(m map[int64]float64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

func keysAscending(m map[int64]float64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// BestBid returns the highest resting bid.
func (b *Book) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bidKeys) == 0 {
		return Level{}, false
	}
	key := b.bidKeys[0]
	return Level{Price: types.KeyToPrice(key), Size: b.bidLevels[key]}, true
}

// BestAsk returns the lowest resting ask.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.askKeys) == 0 {
		return Level{}, false
	}
	key := b.askKeys[0]
	return Level{Price: types.KeyToPrice(key), Size: b.askLevels[key]}, true
}

// View builds the read-only BookView the Solver consumes.
func (b *Book) View() types.BookView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.askKeys) == 0 {
		return types.BookView{}
	}
	key := b.askKeys[0]
	return types.BookView{
		BestAsk:       types.KeyToPrice(key),
		BestAskSize:   b.askLevels[key],
		HasBestAsk:    true,
		BestAskIsOurs: b.ourAskKeys[key],
	}
}

// MidPrice returns (bestBid+bestAsk)/2, or false if either side is empty.
func (b *Book) MidPrice() (float64, bool) {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// IsStale reports whether the book has gone without any update for
// longer than maxAge — the Quoter uses this to pull all resting orders
// when the feed has gone quiet rather than quote on stale data.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

// LastUpdated returns the timestamp of the last applied snapshot or delta.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

func parseDecimal(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
