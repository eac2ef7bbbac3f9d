package positions

import (
	"math"
	"testing"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func newTestTracker() *Tracker {
	tr := New()
	tr.RegisterPair("up-token", "down-token", "market-1")
	return tr
}

func TestApplyFillBuildsAvgEntryOnBuy(t *testing.T) {
	tr := newTestTracker()

	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "up-token", Side: types.BUY, Price: 0.60, Size: 100, Status: types.FillMatched})

	pos := tr.Snapshot("market-1")
	if pos.UpQty != 200 {
		t.Fatalf("UpQty = %v, want 200", pos.UpQty)
	}
	if !almostEqual(pos.AvgEntryUp, 0.50) {
		t.Fatalf("AvgEntryUp = %v, want 0.50", pos.AvgEntryUp)
	}
}

func TestApplyFillBuyFoldsFeeIntoCostBasis(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Fee: 0.5, Status: types.FillMatched})

	pos := tr.Snapshot("market-1")
	wantCostBasis := 100*0.40 + 0.5
	if !almostEqual(pos.CostBasisUp, wantCostBasis) {
		t.Fatalf("CostBasisUp = %v, want %v (size*price + fee)", pos.CostBasisUp, wantCostBasis)
	}
	if !almostEqual(pos.Fees, 0.5) {
		t.Fatalf("Fees = %v, want 0.5", pos.Fees)
	}
}

func TestApplyFillSellRealizesPnL(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "up-token", Side: types.SELL, Price: 0.55, Size: 40, Status: types.FillMatched})

	pos := tr.Snapshot("market-1")
	if pos.UpQty != 60 {
		t.Fatalf("UpQty = %v, want 60", pos.UpQty)
	}
	if !almostEqual(pos.RealizedPnL, (0.55-0.40)*40) {
		t.Fatalf("RealizedPnL = %v, want %v", pos.RealizedPnL, (0.55-0.40)*40)
	}
}

func TestApplyFillSellFoldsFeeIntoRealizedPnL(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "up-token", Side: types.SELL, Price: 0.55, Size: 40, Fee: 0.3, Status: types.FillMatched})

	pos := tr.Snapshot("market-1")
	want := (0.55-0.40)*40 - 0.3
	if !almostEqual(pos.RealizedPnL, want) {
		t.Fatalf("RealizedPnL = %v, want %v (gross pnl minus fee)", pos.RealizedPnL, want)
	}
}

func TestApplyFillSellToZeroResetsAvgEntry(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "up-token", Side: types.SELL, Price: 0.40, Size: 100, Status: types.FillMatched})

	pos := tr.Snapshot("market-1")
	if pos.UpQty != 0 || pos.AvgEntryUp != 0 {
		t.Fatalf("pos = %+v, want zeroed UpQty/AvgEntryUp", pos)
	}
}

func TestApplyFillDedupesRedeliveredTrade(t *testing.T) {
	tr := newTestTracker()
	fill := types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched}

	tr.ApplyFill(fill)
	tr.ApplyFill(fill)

	pos := tr.Snapshot("market-1")
	if pos.UpQty != 100 {
		t.Fatalf("UpQty = %v, want 100 (duplicate fill must be ignored)", pos.UpQty)
	}
}

func TestApplyFillOnlyMatchedStatusMutatesPosition(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillRetrying})

	if pos := tr.Snapshot("market-1"); pos.UpQty != 0 {
		t.Fatalf("UpQty = %v, want 0 (a RETRYING echo must not mutate the position)", pos.UpQty)
	}

	// The MATCHED echo of the same trade is a distinct fillKey and applies.
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	if pos := tr.Snapshot("market-1"); pos.UpQty != 100 {
		t.Fatalf("UpQty = %v, want 100 (an earlier RETRYING must not block the MATCHED apply)", pos.UpQty)
	}
}

func TestApplyFillUnregisteredTokenIsDropped(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "mystery-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})

	if pos := tr.Snapshot("market-1"); pos.UpQty != 0 || pos.DownQty != 0 {
		t.Fatalf("pos = %+v, want untouched for a fill on a token no market registered", pos)
	}
}

func TestApplyFillRoutesAcrossMarkets(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterPair("up-2", "down-2", "market-2")

	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "down-2", Side: types.BUY, Price: 0.45, Size: 50, Status: types.FillMatched})

	if pos := tr.Snapshot("market-1"); pos.UpQty != 100 || pos.DownQty != 0 {
		t.Fatalf("market-1 pos = %+v, want only the up fill", pos)
	}
	if pos := tr.Snapshot("market-2"); pos.DownQty != 50 || pos.UpQty != 0 {
		t.Fatalf("market-2 pos = %+v, want only the down fill", pos)
	}
}

func TestNetDeltaFullyUpIsPositiveOne(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})

	if d := tr.NetDelta("market-1"); d != 1 {
		t.Fatalf("NetDelta = %v, want 1 (pure-up position)", d)
	}
}

func TestTokenQtyAndSetTokenQty(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "down-token", Side: types.BUY, Price: 0.45, Size: 30, Status: types.FillMatched})

	if got := tr.TokenQty("down-token"); got != 30 {
		t.Fatalf("TokenQty(down-token) = %v, want 30", got)
	}
	if got := tr.TokenQty("unknown"); got != 0 {
		t.Fatalf("TokenQty(unknown) = %v, want 0", got)
	}

	tr.SetTokenQty("down-token", 12)
	if got := tr.Snapshot("market-1").DownQty; got != 12 {
		t.Fatalf("DownQty after SetTokenQty = %v, want 12", got)
	}
}

func TestTokensEnumeratesRegisteredTokens(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterPair("up-2", "down-2", "market-2")

	tokens := tr.Tokens()
	if len(tokens) != 4 {
		t.Fatalf("Tokens() = %v, want all four registered token IDs", tokens)
	}
}

func TestMergeOpportunitiesListsEveryPairedMarketNetOfFees(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterPair("up-2", "down-2", "market-2")

	// market-1: 60 complete pairs at combined cost 0.85.
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "down-token", Side: types.BUY, Price: 0.45, Size: 60, Status: types.FillMatched})
	// market-2: 10 complete pairs at combined cost 0.90.
	tr.ApplyFill(types.Fill{TradeID: "t3", TokenID: "up-2", Side: types.BUY, Price: 0.50, Size: 10, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t4", TokenID: "down-2", Side: types.BUY, Price: 0.40, Size: 20, Status: types.FillMatched})

	opps := tr.MergeOpportunities()
	if len(opps) != 2 {
		t.Fatalf("MergeOpportunities() = %+v, want one entry per paired market", opps)
	}

	first := opps[0] // sorted by condition ID: market-1 first
	if first.ConditionID != "market-1" || first.MergeablePairs != 60 {
		t.Fatalf("first = %+v, want market-1 with 60 pairs (min(100,60))", first)
	}
	wantCost := 60 * (0.40 + 0.45)
	if !almostEqual(first.TotalCost, wantCost) {
		t.Fatalf("TotalCost = %v, want %v", first.TotalCost, wantCost)
	}
	wantProfit := 60*1.0 - wantCost - first.EstFees
	if !almostEqual(first.PotentialProfit, wantProfit) {
		t.Fatalf("PotentialProfit = %v, want %v (merge value minus cost minus fees)", first.PotentialProfit, wantProfit)
	}
	if first.EstFees <= 0 {
		t.Fatal("EstFees should carry the estimated merge fee")
	}
}

func TestMergeOpportunitiesOmitsOneSidedMarkets(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})

	if opps := tr.MergeOpportunities(); len(opps) != 0 {
		t.Fatalf("MergeOpportunities() = %+v, want empty with no complete pair", opps)
	}
}

func TestTotalExposureUSD(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyFill(types.Fill{TradeID: "t1", TokenID: "up-token", Side: types.BUY, Price: 0.40, Size: 100, Status: types.FillMatched})
	tr.ApplyFill(types.Fill{TradeID: "t2", TokenID: "down-token", Side: types.BUY, Price: 0.55, Size: 50, Status: types.FillMatched})

	exposure := tr.TotalExposureUSD("market-1", 0.5)
	want := 100*0.5 + 50*(1-0.5)
	if !almostEqual(exposure, want) {
		t.Fatalf("TotalExposureUSD = %v, want %v", exposure, want)
	}
}

func TestSetPositionRestoresSnapshot(t *testing.T) {
	tr := newTestTracker()
	restored := Position{UpQty: 42, AvgEntryUp: 0.33}
	tr.SetPosition("market-1", restored)

	got := tr.Snapshot("market-1")
	if got.UpQty != 42 || got.AvgEntryUp != 0.33 {
		t.Fatalf("Snapshot after SetPosition = %+v, want %+v", got, restored)
	}
}

func TestSnapshotUnknownMarketIsZero(t *testing.T) {
	tr := New()
	if pos := tr.Snapshot("never-registered"); pos != (Position{}) {
		t.Fatalf("Snapshot(unknown) = %+v, want zero Position", pos)
	}
}
