// Package inflight tracks pending cancel/placement commands so a
// Quoter never sends the same command twice while the venue is still
// processing the first one. Entries expire after a TTL, which bounds
// how long a dropped REST/WebSocket confirmation can block a retry.
// A Tracker is owned by exactly one Quoter goroutine, so it needs no
// internal locking.
package inflight

import (
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// DefaultTTL gives WebSocket cancellation confirmations enough time to
// arrive before a retry is allowed. Too short and the Quoter re-sends
// cancels it already sent; too long and recovery from a dropped
// confirmation is slow.
const DefaultTTL = 5 * time.Second

type placementKey struct {
	tokenID  string
	priceKey int64
}

// Tracker tracks in-flight order operations to prevent duplicate commands.
type Tracker struct {
	pendingCancels    map[string]time.Time
	pendingPlacements map[placementKey]time.Time
	ttl               time.Duration
	now               func() time.Time
}

// New builds a Tracker with the given TTL.
func New(ttl time.Duration) *Tracker {
	return &Tracker{
		pendingCancels:    make(map[string]time.Time),
		pendingPlacements: make(map[placementKey]time.Time),
		ttl:               ttl,
		now:               time.Now,
	}
}

// NewDefault builds a Tracker using DefaultTTL.
func NewDefault() *Tracker {
	return New(DefaultTTL)
}

// ShouldCancel reports whether a cancel command should be sent for
// orderID, registering it as pending if so.
func (t *Tracker) ShouldCancel(orderID string) bool {
	if sentAt, ok := t.pendingCancels[orderID]; ok {
		if t.now().Sub(sentAt) < t.ttl {
			return false
		}
	}
	t.pendingCancels[orderID] = t.now()
	return true
}

// CancelFailed clears a pending cancel so it can be retried immediately.
func (t *Tracker) CancelFailed(orderID string) {
	delete(t.pendingCancels, orderID)
}

// CancelConfirmed clears a pending cancel once the REST API confirms
// it — call this on REST confirmation, not on the WebSocket
// CANCELLATION event, since WebSocket delivery can lag behind REST.
func (t *Tracker) CancelConfirmed(orderID string) {
	delete(t.pendingCancels, orderID)
}

// CancelsConfirmed is the batch form of CancelConfirmed.
func (t *Tracker) CancelsConfirmed(orderIDs []string) {
	for _, id := range orderIDs {
		t.CancelConfirmed(id)
	}
}

// IsCancelPending reports whether orderID has an unexpired pending cancel.
func (t *Tracker) IsCancelPending(orderID string) bool {
	sentAt, ok := t.pendingCancels[orderID]
	return ok && t.now().Sub(sentAt) < t.ttl
}

// MarkCancelPending records a cancel as sent without gating on it —
// useful when the caller wants tracking but not deduplication, since
// cancels are idempotent on the venue.
func (t *Tracker) MarkCancelPending(orderID string) {
	t.pendingCancels[orderID] = t.now()
}

// ShouldPlace reports whether a placement command should be sent for
// (tokenID, price), registering it as pending if so.
func (t *Tracker) ShouldPlace(tokenID string, price float64) bool {
	key := placementKey{tokenID: tokenID, priceKey: types.PriceKey(price)}
	if sentAt, ok := t.pendingPlacements[key]; ok {
		if t.now().Sub(sentAt) < t.ttl {
			return false
		}
	}
	t.pendingPlacements[key] = t.now()
	return true
}

// PlacementFailed clears a pending placement so it can be retried immediately.
func (t *Tracker) PlacementFailed(tokenID string, price float64) {
	delete(t.pendingPlacements, placementKey{tokenID: tokenID, priceKey: types.PriceKey(price)})
}

// IsPlacementPending reports whether (tokenID, price) has an unexpired
// pending placement.
func (t *Tracker) IsPlacementPending(tokenID string, price float64) bool {
	key := placementKey{tokenID: tokenID, priceKey: types.PriceKey(price)}
	sentAt, ok := t.pendingPlacements[key]
	return ok && t.now().Sub(sentAt) < t.ttl
}

// OpenOrderInfo is the minimal shape Cleanup needs per resting order.
type OpenOrderInfo struct {
	OrderID string
	TokenID string
	Price   float64
}

// Cleanup reconciles pending entries against the Order State Store's
// current truth. A pending cancel is dropped once its order is no
// longer open (the cancel succeeded) or once it expires. A pending
// placement is dropped once its price level is open (the placement
// succeeded) or once it expires.
func (t *Tracker) Cleanup(openOrders []OpenOrderInfo) {
	openIDs := make(map[string]struct{}, len(openOrders))
	openLevels := make(map[placementKey]struct{}, len(openOrders))
	for _, o := range openOrders {
		openIDs[o.OrderID] = struct{}{}
		openLevels[placementKey{tokenID: o.TokenID, priceKey: types.PriceKey(o.Price)}] = struct{}{}
	}

	now := t.now()
	for oid, sentAt := range t.pendingCancels {
		_, stillOpen := openIDs[oid]
		expired := now.Sub(sentAt) >= t.ttl
		if !stillOpen || expired {
			delete(t.pendingCancels, oid)
		}
	}

	for key, sentAt := range t.pendingPlacements {
		_, nowOpen := openLevels[key]
		expired := now.Sub(sentAt) >= t.ttl
		if nowOpen || expired {
			delete(t.pendingPlacements, key)
		}
	}
}

// PendingCancelCount returns the number of tracked pending cancels.
func (t *Tracker) PendingCancelCount() int { return len(t.pendingCancels) }

// PendingPlacementCount returns the number of tracked pending placements.
func (t *Tracker) PendingPlacementCount() int { return len(t.pendingPlacements) }

// PendingPlacementsForToken counts unexpired pending placements for one
// token, used to cap how many orders a Quoter can accumulate in flight.
func (t *Tracker) PendingPlacementsForToken(tokenID string) int {
	now := t.now()
	count := 0
	for key, sentAt := range t.pendingPlacements {
		if key.tokenID == tokenID && now.Sub(sentAt) < t.ttl {
			count++
		}
	}
	return count
}
