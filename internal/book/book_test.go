package book

import (
	"testing"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func TestApplySnapshotBestBidAsk(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.45", Size: "100"}, {Price: "0.44", Size: "50"}},
		[]types.PriceLevel{{Price: "0.46", Size: "80"}, {Price: "0.47", Size: "20"}},
		"hash-1",
	)

	bid, ok := b.BestBid()
	if !ok || bid.Price != 0.45 || bid.Size != 100 {
		t.Fatalf("BestBid = %+v, %v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price != 0.46 || ask.Size != 80 {
		t.Fatalf("BestAsk = %+v, %v", ask, ok)
	}
	mid, ok := b.MidPrice()
	if !ok || mid != 0.455 {
		t.Fatalf("MidPrice = %v, %v", mid, ok)
	}
}

func TestApplySnapshotDropsZeroSizeLevels(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.45", Size: "0"}, {Price: "0.40", Size: "10"}},
		nil,
		"hash-1",
	)
	bid, ok := b.BestBid()
	if !ok || bid.Price != 0.40 {
		t.Fatalf("BestBid = %+v, %v, want 0.40", bid, ok)
	}
}

func TestApplyDeltaUpdatesAndRemoves(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.45", Size: "100"}},
		[]types.PriceLevel{{Price: "0.46", Size: "80"}},
		"hash-1",
	)

	b.ApplyDelta(0.45, 0, string(types.BUY), "hash-2")
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected bid side empty after zero-size delta")
	}

	b.ApplyDelta(0.46, 200, string(types.SELL), "hash-3")
	ask, ok := b.BestAsk()
	if !ok || ask.Size != 200 {
		t.Fatalf("BestAsk after delta = %+v, %v, want size 200", ask, ok)
	}
}

func TestApplyDeltaNewLevelBecomesBest(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.45", Size: "100"}},
		nil,
		"hash-1",
	)
	b.ApplyDelta(0.48, 30, string(types.BUY), "hash-2")

	bid, ok := b.BestBid()
	if !ok || bid.Price != 0.48 {
		t.Fatalf("BestBid = %+v, %v, want 0.48 (new highest bid)", bid, ok)
	}
}

func TestMarkOursAffectsView(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot(nil, []types.PriceLevel{{Price: "0.46", Size: "80"}}, "hash-1")

	v := b.View()
	if !v.HasBestAsk || v.BestAskIsOurs {
		t.Fatalf("View before MarkOurs = %+v, want BestAskIsOurs=false", v)
	}

	b.MarkOurs(0.46, types.SELL, true)
	v = b.View()
	if !v.BestAskIsOurs {
		t.Fatalf("View after MarkOurs = %+v, want BestAskIsOurs=true", v)
	}

	b.MarkOurs(0.46, types.SELL, false)
	v = b.View()
	if v.BestAskIsOurs {
		t.Fatalf("View after clearing MarkOurs = %+v, want BestAskIsOurs=false", v)
	}
}

func TestIsStale(t *testing.T) {
	b := New("token-1")
	if !b.IsStale(time.Second) {
		t.Fatal("new book with zero LastUpdated should be stale")
	}

	b.ApplySnapshot(nil, nil, "hash-1")
	if b.IsStale(time.Minute) {
		t.Fatal("freshly updated book should not be stale")
	}
}

func TestMidPriceRequiresBothSides(t *testing.T) {
	b := New("token-1")
	b.ApplySnapshot([]types.PriceLevel{{Price: "0.45", Size: "10"}}, nil, "hash-1")
	if _, ok := b.MidPrice(); ok {
		t.Fatal("MidPrice should be unavailable with empty ask side")
	}
}
