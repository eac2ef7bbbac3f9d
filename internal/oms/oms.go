// Package oms is the Order State Store: the single process-wide
// in-memory source of truth for which orders are resting on the venue,
// shared by every Quoter for the lifetime of the process. It is
// hydrated from REST snapshots and kept current by streamed
// order-lifecycle events, with a periodic reconciler re-asserting REST
// truth. Orders are indexed both by ID, for event routing, and by
// token, for the Diff algorithm and Quoter, which only ever care about
// one token's ladder at a time.
package oms

import (
	"strconv"
	"sync"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// Store holds the resting orders for every market the process quotes.
// Exclusive-write via the reconciler and stream ingestion, many
// concurrent readers (Quoters, dashboard), so it is RWMutex-protected.
type Store struct {
	mu sync.RWMutex

	byID    map[string]types.TrackedOrder
	byToken map[string]map[string]struct{} // tokenID -> set of orderIDs
}

// New creates an empty order store.
func New() *Store {
	return &Store{
		byID:    make(map[string]types.TrackedOrder),
		byToken: make(map[string]map[string]struct{}),
	}
}

// HydrateREST replaces the store's entire contents with a full REST
// snapshot of open orders across every market, as the periodic order
// reconciler pulls it. A REST OpenOrder carries
// its own CreatedAt (unix seconds); if absent or unparseable, the
// order is hydrated with a zero CreatedAt, so it sorts oldest in any
// FIFO comparison rather than panicking or being dropped — a cold
// CreatedAt is the conservative choice, since it cannot cause an
// order that actually has queue priority to be cancelled first.
func (s *Store) HydrateREST(orders []types.OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]types.TrackedOrder, len(orders))
	s.byToken = make(map[string]map[string]struct{})

	for _, o := range orders {
		tracked := trackedFromOpenOrder(o)
		s.insertLocked(tracked)
	}
}

// UpsertREST merges a market-scoped REST page of open orders into the
// store without touching other markets' entries, used when a new
// market starts quoting mid-process.
func (s *Store) UpsertREST(orders []types.OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		s.insertLocked(trackedFromOpenOrder(o))
	}
}

func trackedFromOpenOrder(o types.OpenOrder) types.TrackedOrder {
	return types.TrackedOrder{
		OrderID:      o.ID,
		TokenID:      o.AssetID,
		Side:         types.Side(o.Side),
		Price:        parseFloat(o.Price),
		OriginalSize: parseFloat(o.OriginalSize),
		MatchedSize:  parseFloat(o.SizeMatched),
		Status:       statusFromREST(o.Status),
		CreatedAt:    parseUnixSeconds(o.CreatedAt),
	}
}

func statusFromREST(s string) types.OrderStatus {
	switch s {
	case "matched", "FILLED":
		return types.StatusFilled
	case "cancelled", "CANCELLED":
		return types.StatusCancelled
	default:
		return types.StatusOpen
	}
}

// ApplyEvent ingests a WebSocket order-lifecycle event. PLACEMENT
// inserts a new TrackedOrder with CreatedAt taken from the event's
// timestamp; UPDATE adjusts MatchedSize/Status in place, preserving
// a known order's CreatedAt so queue-priority comparisons stay valid
// across partial fills (an UPDATE for an order not yet in the store
// inserts it with CreatedAt from the UPDATE's own timestamp), and
// removes the order once it is fully filled; CANCELLATION removes the
// order.
func (s *Store) ApplyEvent(ev types.WSOrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case "PLACEMENT":
		s.insertLocked(types.TrackedOrder{
			OrderID:      ev.ID,
			TokenID:      ev.AssetID,
			Side:         types.Side(ev.Side),
			Price:        parseFloat(ev.Price),
			OriginalSize: parseFloat(ev.OriginalSize),
			MatchedSize:  parseFloat(ev.SizeMatched),
			Status:       types.StatusOpen,
			CreatedAt:    parseUnixSeconds(ev.Timestamp),
		})
	case "UPDATE":
		existing, ok := s.byID[ev.ID]
		if !ok {
			// Update for an order we never saw PLACEMENT for (e.g. a
			// reconnect mid-life). Hydrate it now rather than drop the
			// event; CreatedAt falls back to this event's timestamp.
			existing = types.TrackedOrder{
				OrderID:   ev.ID,
				TokenID:   ev.AssetID,
				Side:      types.Side(ev.Side),
				Price:     parseFloat(ev.Price),
				CreatedAt: parseUnixSeconds(ev.Timestamp),
			}
		}
		existing.OriginalSize = parseFloat(ev.OriginalSize)
		existing.MatchedSize = parseFloat(ev.SizeMatched)
		if existing.Remaining() <= 0 {
			existing.Status = types.StatusFilled
			s.removeLocked(existing.OrderID, existing.TokenID)
			return
		}
		if existing.MatchedSize > 0 {
			existing.Status = types.StatusPartiallyFilled
		}
		s.insertLocked(existing)
	case "CANCELLATION":
		if existing, ok := s.byID[ev.ID]; ok {
			s.removeLocked(ev.ID, existing.TokenID)
		}
	}
}

func (s *Store) insertLocked(o types.TrackedOrder) {
	s.byID[o.OrderID] = o
	set, ok := s.byToken[o.TokenID]
	if !ok {
		set = make(map[string]struct{})
		s.byToken[o.TokenID] = set
	}
	set[o.OrderID] = struct{}{}
}

func (s *Store) removeLocked(orderID, tokenID string) {
	delete(s.byID, orderID)
	if set, ok := s.byToken[tokenID]; ok {
		delete(set, orderID)
		if len(set) == 0 {
			delete(s.byToken, tokenID)
		}
	}
}

// RemoveConfirmedCancel drops an order the Executor has confirmed
// cancelled via REST, without waiting for the WebSocket CANCELLATION
// event, which can lag.
func (s *Store) RemoveConfirmedCancel(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[orderID]; ok {
		s.removeLocked(orderID, existing.TokenID)
	}
}

// OrdersForToken returns a snapshot of all resting orders for one
// token, the input Diff needs to compute cancels/placements.
func (s *Store) OrdersForToken(tokenID string) []types.TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byToken[tokenID]
	out := make([]types.TrackedOrder, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns a single tracked order by ID.
func (s *Store) Get(orderID string) (types.TrackedOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[orderID]
	return o, ok
}

// All returns a snapshot of every resting order across every market.
func (s *Store) All() []types.TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TrackedOrder, 0, len(s.byID))
	for _, o := range s.byID {
		out = append(out, o)
	}
	return out
}

// Count returns the number of resting orders for a token.
func (s *Store) Count(tokenID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken[tokenID])
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseUnixSeconds parses a unix-seconds timestamp string, the format
// both OpenOrder.CreatedAt and WSOrderEvent.Timestamp use. Also
// accepts a decimal fraction (unix seconds with millisecond
// precision) since the venue's REST and WebSocket clocks don't always
// render with the same precision.
func parseUnixSeconds(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(f)
		frac := f - float64(whole)
		return time.Unix(whole, int64(frac*1e9))
	}
	return time.Time{}
}
