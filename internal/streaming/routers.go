package streaming

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// envelope peeks at a frame's event_type without committing to a full
// shape, so Parse can pick the right concrete type to unmarshal into.
type envelope struct {
	EventType string `json:"event_type"`
}

// MarketRouter parses the public market-data channel: full book
// snapshots and incremental price_change deltas.
type MarketRouter struct{}

// Parse decodes a market-channel frame into the typed event its
// event_type names.
func (MarketRouter) Parse(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("market frame: %w", err)
	}

	switch env.EventType {
	case "book":
		var evt types.WSBookEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("book event: %w", err)
		}
		return evt, nil
	case "price_change":
		var evt types.WSPriceChangeEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("price_change event: %w", err)
		}
		return evt, nil
	case "last_trade_price", "tick_size_change", "best_bid_ask", "new_market", "market_resolved":
		return env, nil
	default:
		return nil, fmt.Errorf("unknown market event_type %q", env.EventType)
	}
}

// RouteKey dispatches book/price_change events by token ID, so each
// token's Quoter can register a handler for only its own asset.
func (MarketRouter) RouteKey(msg Message) RouteKey {
	switch v := msg.(type) {
	case types.WSBookEvent:
		return RouteKey(v.AssetID)
	case types.WSPriceChangeEvent:
		if len(v.PriceChanges) > 0 {
			return RouteKey(v.PriceChanges[0].AssetID)
		}
		return RouteKey(v.Market)
	default:
		return RouteKey("unrouted")
	}
}

// MarketPing recognizes the venue's bare "PING" text frame, sent on
// both channels, which isn't valid JSON and would otherwise fail
// MarketRouter.Parse/UserRouter.Parse.
type MarketPing struct{}

// IsPing reports whether raw was the literal PING frame.
func (MarketPing) IsPing(raw []byte) bool {
	return bytes.EqualFold(bytes.TrimSpace(raw), []byte("PING"))
}

// PongFrame is the reply sent for a detected ping.
func (MarketPing) PongFrame() []byte { return []byte("PONG") }

// MarketPong recognizes the venue's bare "PONG" text frame, the reply
// to our own actively-sent Heartbeat PING, used by streaming.Client to
// confirm the connection is actually round-tripping.
type MarketPong struct{}

// IsPong reports whether raw was the literal PONG frame.
func (MarketPong) IsPong(raw []byte) bool {
	return bytes.EqualFold(bytes.TrimSpace(raw), []byte("PONG"))
}

// UserRouter parses the authenticated user channel: trade fills and
// order lifecycle events.
type UserRouter struct{}

// Parse decodes a user-channel frame into the typed event its
// event_type names.
func (UserRouter) Parse(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("user frame: %w", err)
	}

	switch env.EventType {
	case "trade":
		var evt types.WSTradeEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("trade event: %w", err)
		}
		return evt, nil
	case "order":
		var evt types.WSOrderEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("order event: %w", err)
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("unknown user event_type %q", env.EventType)
	}
}

// RouteKey dispatches trade/order events by their own type name, since
// the user channel is shared across every market the bot quotes and
// the OMS/Positions trackers each want every event of their kind.
func (UserRouter) RouteKey(msg Message) RouteKey {
	switch msg.(type) {
	case types.WSTradeEvent:
		return RouteKey("trade")
	case types.WSOrderEvent:
		return RouteKey("order")
	default:
		return RouteKey("unrouted")
	}
}
