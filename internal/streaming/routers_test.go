package streaming

import (
	"testing"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func TestMarketRouterParseBookEvent(t *testing.T) {
	raw := []byte(`{"event_type":"book","asset_id":"tok1","market":"cond1","hash":"h1","buys":[{"price":"0.45","size":"10"}]}`)

	msg, err := MarketRouter{}.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	evt, ok := msg.(types.WSBookEvent)
	if !ok {
		t.Fatalf("Parse returned %T, want types.WSBookEvent", msg)
	}
	if evt.AssetID != "tok1" || evt.Hash != "h1" {
		t.Fatalf("evt = %+v, unexpected fields", evt)
	}
}

func TestMarketRouterParsePriceChangeEvent(t *testing.T) {
	raw := []byte(`{"event_type":"price_change","market":"cond1","price_changes":[{"asset_id":"tok1","price":"0.46","size":"5","side":"BUY"}]}`)

	msg, err := MarketRouter{}.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	evt, ok := msg.(types.WSPriceChangeEvent)
	if !ok {
		t.Fatalf("Parse returned %T, want types.WSPriceChangeEvent", msg)
	}
	if len(evt.PriceChanges) != 1 || evt.PriceChanges[0].AssetID != "tok1" {
		t.Fatalf("evt = %+v, unexpected fields", evt)
	}
}

func TestMarketRouterParseUnknownEventTypeErrors(t *testing.T) {
	raw := []byte(`{"event_type":"something_weird"}`)
	if _, err := (MarketRouter{}).Parse(raw); err == nil {
		t.Fatal("expected an error for an unrecognized market event_type")
	}
}

func TestMarketRouterParsePassthroughEventTypes(t *testing.T) {
	for _, evType := range []string{"last_trade_price", "tick_size_change", "best_bid_ask", "new_market", "market_resolved"} {
		raw := []byte(`{"event_type":"` + evType + `"}`)
		if _, err := (MarketRouter{}).Parse(raw); err != nil {
			t.Fatalf("Parse(%q): unexpected error %v", evType, err)
		}
	}
}

func TestMarketRouterRouteKeyByAssetID(t *testing.T) {
	key := MarketRouter{}.RouteKey(types.WSBookEvent{AssetID: "tok1"})
	if key != RouteKey("tok1") {
		t.Fatalf("RouteKey = %v, want tok1", key)
	}
}

func TestMarketRouterRouteKeyPriceChangeUsesFirstLevelAssetID(t *testing.T) {
	key := MarketRouter{}.RouteKey(types.WSPriceChangeEvent{
		Market:       "cond1",
		PriceChanges: []types.WSPriceChange{{AssetID: "tok1"}, {AssetID: "tok2"}},
	})
	if key != RouteKey("tok1") {
		t.Fatalf("RouteKey = %v, want tok1 (first price change's asset)", key)
	}
}

func TestMarketRouterRouteKeyPriceChangeEmptyFallsBackToMarket(t *testing.T) {
	key := MarketRouter{}.RouteKey(types.WSPriceChangeEvent{Market: "cond1"})
	if key != RouteKey("cond1") {
		t.Fatalf("RouteKey = %v, want cond1 (fallback to market when no price changes)", key)
	}
}

func TestMarketRouterRouteKeyUnrecognizedTypeIsUnrouted(t *testing.T) {
	key := MarketRouter{}.RouteKey(envelope{EventType: "new_market"})
	if key != RouteKey("unrouted") {
		t.Fatalf("RouteKey = %v, want unrouted", key)
	}
}

func TestUserRouterParseTradeEvent(t *testing.T) {
	raw := []byte(`{"event_type":"trade","id":"t1","market":"cond1","asset_id":"tok1","side":"BUY","size":"10","price":"0.40"}`)
	msg, err := UserRouter{}.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	evt, ok := msg.(types.WSTradeEvent)
	if !ok {
		t.Fatalf("Parse returned %T, want types.WSTradeEvent", msg)
	}
	if evt.ID != "t1" {
		t.Fatalf("evt.ID = %v, want t1", evt.ID)
	}
}

func TestUserRouterParseOrderEvent(t *testing.T) {
	raw := []byte(`{"event_type":"order","id":"o1","type":"PLACEMENT"}`)
	msg, err := UserRouter{}.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	evt, ok := msg.(types.WSOrderEvent)
	if !ok {
		t.Fatalf("Parse returned %T, want types.WSOrderEvent", msg)
	}
	if evt.Type != "PLACEMENT" {
		t.Fatalf("evt.Type = %v, want PLACEMENT", evt.Type)
	}
}

func TestUserRouterParseUnknownEventTypeErrors(t *testing.T) {
	raw := []byte(`{"event_type":"mystery"}`)
	if _, err := (UserRouter{}).Parse(raw); err == nil {
		t.Fatal("expected an error for an unrecognized user event_type")
	}
}

func TestUserRouterRouteKeyIsStaticByMessageType(t *testing.T) {
	if key := (UserRouter{}).RouteKey(types.WSTradeEvent{}); key != RouteKey("trade") {
		t.Fatalf("RouteKey(trade event) = %v, want trade", key)
	}
	if key := (UserRouter{}).RouteKey(types.WSOrderEvent{}); key != RouteKey("order") {
		t.Fatalf("RouteKey(order event) = %v, want order", key)
	}
}

func TestMarketPingDetectsBareFrame(t *testing.T) {
	ping := MarketPing{}
	if !ping.IsPing([]byte("PING")) {
		t.Fatal("literal PING frame should be detected as a ping")
	}
	if !ping.IsPing([]byte(" ping \n")) {
		t.Fatal("PING detection should be case-insensitive and tolerate surrounding whitespace")
	}
	if ping.IsPing([]byte(`{"event_type":"book"}`)) {
		t.Fatal("a JSON book frame should not be detected as a ping")
	}
}

func TestMarketPongDetectsBareFrame(t *testing.T) {
	pong := MarketPong{}
	if !pong.IsPong([]byte("PONG")) {
		t.Fatal("literal PONG frame should be detected as a pong")
	}
	if pong.IsPong([]byte("PING")) {
		t.Fatal("a PING frame should not be detected as a pong")
	}
	if pong.IsPong([]byte(`{"event_type":"book"}`)) {
		t.Fatal("a JSON book frame should not be detected as a pong")
	}
}
