package oms

import (
	"testing"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func TestHydrateRESTIndexesByTokenAndID(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{
		{ID: "o1", AssetID: "up-token", Side: "BUY", OriginalSize: "100", SizeMatched: "0", Price: "0.40", Status: "live", CreatedAt: "1700000000"},
		{ID: "o2", AssetID: "down-token", Side: "BUY", OriginalSize: "50", SizeMatched: "10", Price: "0.45", Status: "live", CreatedAt: "1700000010"},
	})

	if s.Count("up-token") != 1 || s.Count("down-token") != 1 {
		t.Fatalf("Count = %d/%d, want 1/1", s.Count("up-token"), s.Count("down-token"))
	}
	o, ok := s.Get("o1")
	if !ok {
		t.Fatal("Get(o1) not found")
	}
	if o.Price != 0.40 || o.OriginalSize != 100 || o.Status != types.StatusOpen {
		t.Fatalf("o1 = %+v, unexpected fields", o)
	}
	if !o.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("CreatedAt = %v, want unix 1700000000", o.CreatedAt)
	}
}

func TestHydrateRESTUnparseableCreatedAtFallsBackToZero(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{
		{ID: "o1", AssetID: "up-token", Side: "BUY", OriginalSize: "100", Price: "0.40", CreatedAt: "garbage"},
	})
	o, _ := s.Get("o1")
	if !o.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt = %v, want zero time for unparseable input", o.CreatedAt)
	}
}

func TestApplyEventPlacementInsertsOrder(t *testing.T) {
	s := New()
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "0", Type: "PLACEMENT", Timestamp: "1700000000",
	})

	o, ok := s.Get("o1")
	if !ok {
		t.Fatal("order not inserted by PLACEMENT")
	}
	if o.Status != types.StatusOpen {
		t.Fatalf("Status = %v, want OPEN", o.Status)
	}
	if s.Count("up-token") != 1 {
		t.Fatalf("Count(up-token) = %d, want 1", s.Count("up-token"))
	}
}

func TestApplyEventUpdatePreservesCreatedAt(t *testing.T) {
	s := New()
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "0", Type: "PLACEMENT", Timestamp: "1700000000",
	})
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "40", Type: "UPDATE", Timestamp: "1700000999",
	})

	o, _ := s.Get("o1")
	if !o.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("CreatedAt = %v, want preserved from PLACEMENT", o.CreatedAt)
	}
	if o.Status != types.StatusPartiallyFilled {
		t.Fatalf("Status = %v, want PARTIALLY_FILLED", o.Status)
	}
	if o.MatchedSize != 40 {
		t.Fatalf("MatchedSize = %v, want 40", o.MatchedSize)
	}
}

func TestApplyEventUpdateFullyFilledRemovesOrder(t *testing.T) {
	s := New()
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "0", Type: "PLACEMENT", Timestamp: "1700000000",
	})
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "100", Type: "UPDATE", Timestamp: "1700000999",
	})

	if _, ok := s.Get("o1"); ok {
		t.Fatal("fully filled order should have been removed from the store")
	}
	if s.Count("up-token") != 0 {
		t.Fatalf("Count(up-token) = %d, want 0", s.Count("up-token"))
	}
}

func TestApplyEventUpdateWithoutPriorPlacementHydratesFromEvent(t *testing.T) {
	s := New()
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "10", Type: "UPDATE", Timestamp: "1700000500",
	})

	o, ok := s.Get("o1")
	if !ok {
		t.Fatal("UPDATE with no prior PLACEMENT should still hydrate the order")
	}
	if !o.CreatedAt.Equal(time.Unix(1700000500, 0)) {
		t.Fatalf("CreatedAt = %v, want fallback to event timestamp", o.CreatedAt)
	}
}

func TestApplyEventCancellationRemovesOrder(t *testing.T) {
	s := New()
	s.ApplyEvent(types.WSOrderEvent{
		ID: "o1", AssetID: "up-token", Side: "BUY", Price: "0.40",
		OriginalSize: "100", SizeMatched: "0", Type: "PLACEMENT", Timestamp: "1700000000",
	})
	s.ApplyEvent(types.WSOrderEvent{ID: "o1", AssetID: "up-token", Type: "CANCELLATION"})

	if _, ok := s.Get("o1"); ok {
		t.Fatal("cancelled order should have been removed")
	}
}

func TestRemoveConfirmedCancel(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{{ID: "o1", AssetID: "up-token", OriginalSize: "100", Price: "0.40", CreatedAt: "1700000000"}})

	s.RemoveConfirmedCancel("o1")
	if _, ok := s.Get("o1"); ok {
		t.Fatal("order should have been removed after confirmed cancel")
	}
	if s.Count("up-token") != 0 {
		t.Fatalf("Count(up-token) = %d, want 0", s.Count("up-token"))
	}
}

func TestOrdersForTokenIsolatesTokens(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{
		{ID: "o1", AssetID: "up-token", OriginalSize: "100", Price: "0.40", CreatedAt: "1700000000"},
		{ID: "o2", AssetID: "down-token", OriginalSize: "50", Price: "0.45", CreatedAt: "1700000010"},
	})

	up := s.OrdersForToken("up-token")
	if len(up) != 1 || up[0].OrderID != "o1" {
		t.Fatalf("OrdersForToken(up-token) = %+v, want only o1", up)
	}
}

func TestAllReturnsEverything(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{
		{ID: "o1", AssetID: "up-token", OriginalSize: "100", Price: "0.40", CreatedAt: "1700000000"},
		{ID: "o2", AssetID: "down-token", OriginalSize: "50", Price: "0.45", CreatedAt: "1700000010"},
	})
	if len(s.All()) != 2 {
		t.Fatalf("All() len = %d, want 2", len(s.All()))
	}
}

func TestUpsertRESTLeavesOtherMarketsUntouched(t *testing.T) {
	s := New()
	s.HydrateREST([]types.OpenOrder{
		{ID: "o1", AssetID: "up-token", OriginalSize: "100", Price: "0.40", CreatedAt: "1700000000"},
	})

	s.UpsertREST([]types.OpenOrder{
		{ID: "o2", AssetID: "other-up", OriginalSize: "50", Price: "0.45", CreatedAt: "1700000010"},
	})

	if _, ok := s.Get("o1"); !ok {
		t.Fatal("upserting one market's orders must not drop another market's entries")
	}
	if _, ok := s.Get("o2"); !ok {
		t.Fatal("upserted order should be present")
	}
	if s.Count("up-token") != 1 || s.Count("other-up") != 1 {
		t.Fatalf("Count = %d/%d, want 1/1", s.Count("up-token"), s.Count("other-up"))
	}
}
