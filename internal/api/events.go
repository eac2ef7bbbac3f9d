package api

import (
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// DashboardEvent is the wrapper for all events sent to the dashboard
type DashboardEvent struct {
	Type      string      `json:"type"`      // "snapshot", "fill", "order", "position", "kill"
	Timestamp time.Time   `json:"timestamp"` // Event time
	MarketID  string      `json:"market_id"` // Condition ID (empty for global events)
	Data      interface{} `json:"data"`      // Event-specific payload
}

// FillEvent represents a trade fill notification
type FillEvent struct {
	OrderID    string  `json:"order_id"`
	Side       string  `json:"side"`        // "BUY" or "SELL"
	TokenType  string  `json:"token_type"`  // "Up" or "Down"
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	MarketSlug string  `json:"market_slug"` // Human-readable market name
	// Position after fill
	UpQty         float64 `json:"up_qty"`
	DownQty       float64 `json:"down_qty"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// OrderEvent represents order placement/cancellation
type OrderEvent struct {
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`     // "PLACEMENT", "UPDATE", "CANCELLATION"
	Side      string  `json:"side"`       // "BUY" or "SELL"
	TokenType string  `json:"token_type"` // "Up" or "Down"
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
}

// PositionEvent is emitted when position changes
type PositionEvent struct {
	MarketSlug    string  `json:"market_slug"`
	UpQty         float64 `json:"up_qty"`
	DownQty       float64 `json:"down_qty"`
	AvgEntryUp    float64 `json:"avg_entry_up"`
	AvgEntryDown  float64 `json:"avg_entry_down"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	ExposureUSD   float64 `json:"exposure_usd"`
	MidPrice      float64 `json:"mid_price"`
}

// KillEvent is emitted when kill switch activates
type KillEvent struct {
	Reason   string    `json:"reason"`
	Details  string    `json:"details"`
	Until    time.Time `json:"until"` // Cooldown expiry
	MarketID string    `json:"market_id,omitempty"`
}

// QuoteEvent represents the top of the current maker ladder on one token.
type QuoteEvent struct {
	MarketSlug string  `json:"market_slug"`
	TokenType  string  `json:"token_type"` // "Up" or "Down"
	BidPrice   float64 `json:"bid_price"`
	BidSize    float64 `json:"bid_size"`
	MidPrice   float64 `json:"mid_price"`
}

// BookUpdateEvent represents order book changes
type BookUpdateEvent struct {
	MarketSlug string    `json:"market_slug"`
	BestBid    float64   `json:"best_bid"`
	BestAsk    float64   `json:"best_ask"`
	MidPrice   float64   `json:"mid_price"`
	Spread     float64   `json:"spread"`
	UpdateTime time.Time `json:"update_time"`
}

// NewFillEvent creates a fill event from trade data. tokenType identifies
// which of the market's two tokens this fill was on ("Up" or "Down"),
// resolved by the caller from the fill's asset ID.
func NewFillEvent(trade types.WSTradeEvent, pos PositionSnapshot, marketSlug, tokenType string, price, size float64) FillEvent {
	return FillEvent{
		OrderID:       trade.ID,
		Side:          trade.Side,
		TokenType:     tokenType,
		Price:         price,
		Size:          size,
		MarketSlug:    marketSlug,
		UpQty:         pos.UpQty,
		DownQty:       pos.DownQty,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
	}
}

// NewOrderEvent creates an order event. tokenType identifies which of the
// market's two tokens the order is on ("Up" or "Down").
func NewOrderEvent(orderID, status, side, tokenType string, price, size float64) OrderEvent {
	return OrderEvent{
		OrderID:   orderID,
		Status:    status,
		Side:      side,
		TokenType: tokenType,
		Price:     price,
		Size:      size,
	}
}

// NewPositionEvent creates a position event
func NewPositionEvent(pos PositionSnapshot, marketSlug string, midPrice float64) PositionEvent {
	return PositionEvent{
		MarketSlug:    marketSlug,
		UpQty:         pos.UpQty,
		DownQty:       pos.DownQty,
		AvgEntryUp:    pos.AvgEntryUp,
		AvgEntryDown:  pos.AvgEntryDown,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
		ExposureUSD:   pos.ExposureUSD,
		MidPrice:      midPrice,
	}
}

// NewKillEvent creates a kill switch event
func NewKillEvent(reason, details string, until time.Time, marketID string) KillEvent {
	return KillEvent{
		Reason:   reason,
		Details:  details,
		Until:    until,
		MarketID: marketID,
	}
}
