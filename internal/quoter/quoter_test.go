package quoter

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/api"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/exchange"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/executor"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/oms"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/positions"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/risk"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestQuoter(t *testing.T) *Quoter {
	t.Helper()
	logger := testLogger()
	market := types.MarketInfo{
		ConditionID: "cond1",
		Slug:        "will-it-happen",
		UpTokenID:   "up-token",
		DownTokenID: "down-token",
		TickSize:    types.Tick001,
	}
	cfg := config.Config{
		Solver: config.SolverConfig{NumLevels: 3, TickSize: 0.01, OrderSize: 10, MinProfitMargin: 0.02},
		Merger: config.MergerConfig{MinMergeSize: 5, MaxMergeImbalance: 0.2, MinProfitMargin: 0.01, Cooldown: time.Minute},
		Quoter: config.QuoterConfig{TickInterval: time.Second, InFlightTTL: time.Second},
	}
	client := exchange.NewClient(config.Config{DryRun: true, API: config.APIConfig{CLOBBaseURL: "http://localhost"}}, &exchange.Auth{}, logger)
	exec := executor.New(client, logger, 8)
	riskMgr := risk.NewManager(config.RiskConfig{}, logger)
	dashEvts := make(chan api.DashboardEvent, 8)

	ordersStore := oms.New()
	posTracker := positions.New()
	posTracker.RegisterPair(market.UpTokenID, market.DownTokenID, market.ConditionID)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go exec.Run(ctx)

	return New(market, cfg, exec, riskMgr, ordersStore, posTracker, dashEvts, logger)
}

func TestNewQuoterBookLooksUpByTokenID(t *testing.T) {
	q := newTestQuoter(t)

	if q.Book("up-token") == nil {
		t.Fatal("Book(up-token) should return the up book")
	}
	if q.Book("down-token") == nil {
		t.Fatal("Book(down-token) should return the down book")
	}
	if q.Book("nope") != nil {
		t.Fatal("Book(unknown token) should return nil")
	}
}

func TestSolverConfigFromMapsAllFields(t *testing.T) {
	c := config.SolverConfig{
		NumLevels:       3,
		TickSize:        0.01,
		BaseOffset:      0.02,
		MinOffset:       0.01,
		MaxImbalance:    0.8,
		OrderSize:       10,
		SpreadPerLevel:  0.005,
		OffsetScaling:   1.5,
		SkewFactor:      0.3,
		MinProfitMargin: 0.02,
		MaxPosition:     1000,
	}
	market := types.MarketInfo{}

	out := solverConfigFrom(c, market)
	if out.NumLevels != c.NumLevels || out.TickSize != c.TickSize || out.BaseOffset != c.BaseOffset ||
		out.MinOffset != c.MinOffset || out.MaxImbalance != c.MaxImbalance || out.OrderSize != c.OrderSize ||
		out.SpreadPerLevel != c.SpreadPerLevel || out.OffsetScaling != c.OffsetScaling ||
		out.SkewFactor != c.SkewFactor || out.MinProfitMargin != c.MinProfitMargin || out.MaxPosition != c.MaxPosition {
		t.Fatalf("solverConfigFrom did not carry every field through: got %+v from %+v", out, c)
	}
}

func TestFillFromTradeConvertsWSTradeEvent(t *testing.T) {
	trade := types.WSTradeEvent{
		ID:      "trade-1",
		AssetID: "up-token",
		Side:    "BUY",
		Price:   "0.45",
		Size:    "10",
		Status:  "MATCHED",
	}

	fill := fillFromTrade(trade)
	if fill.TradeID != "trade-1" || fill.TokenID != "up-token" {
		t.Fatalf("fill = %+v, unexpected identity fields", fill)
	}
	if fill.Side != types.BUY {
		t.Fatalf("fill.Side = %v, want BUY", fill.Side)
	}
	if fill.Price != 0.45 || fill.Size != 10 {
		t.Fatalf("fill price/size = %v/%v, want 0.45/10", fill.Price, fill.Size)
	}
	if fill.Status != types.FillMatched {
		t.Fatalf("fill.Status = %v, want FillMatched", fill.Status)
	}
}

func TestParseFloatInvalidReturnsZero(t *testing.T) {
	if got := parseFloat("not-a-number"); got != 0 {
		t.Fatalf("parseFloat(invalid) = %v, want 0", got)
	}
	if got := parseFloat("0.75"); got != 0.75 {
		t.Fatalf("parseFloat(0.75) = %v, want 0.75", got)
	}
}

func TestTokenTypeMapsKnownAndUnknownAssetIDs(t *testing.T) {
	q := newTestQuoter(t)

	if got := q.tokenType("up-token"); got != "Up" {
		t.Fatalf("tokenType(up-token) = %q, want Up", got)
	}
	if got := q.tokenType("down-token"); got != "Down" {
		t.Fatalf("tokenType(down-token) = %q, want Down", got)
	}
	if got := q.tokenType("some-other-asset"); got != "" {
		t.Fatalf("tokenType(unknown) = %q, want empty string", got)
	}
}

func TestEmitEventNilChannelIsNoop(t *testing.T) {
	q := newTestQuoter(t)
	q.dashEvts = nil

	// Must not panic or block when no dashboard is attached.
	q.emitEvent("fill", struct{}{})
}

func TestEmitEventSendsNonBlockingly(t *testing.T) {
	q := newTestQuoter(t)
	q.dashEvts = make(chan api.DashboardEvent, 1)

	q.emitEvent("fill", api.FillEvent{OrderID: "o1"})

	select {
	case evt := <-q.dashEvts:
		if evt.Type != "fill" {
			t.Fatalf("evt.Type = %q, want fill", evt.Type)
		}
		if evt.MarketID != q.market.ConditionID {
			t.Fatalf("evt.MarketID = %q, want %q", evt.MarketID, q.market.ConditionID)
		}
	default:
		t.Fatal("expected an event on dashEvts")
	}

	// A full channel must drop the event rather than block the caller.
	q.emitEvent("fill", api.FillEvent{OrderID: "o2"})
	q.emitEvent("fill", api.FillEvent{OrderID: "o3"}) // channel still holds o1, this must not block
}

func TestEmitFillPublishesFillEventWithResolvedTokenType(t *testing.T) {
	q := newTestQuoter(t)
	q.dashEvts = make(chan api.DashboardEvent, 1)

	trade := types.WSTradeEvent{
		ID:      "trade-1",
		AssetID: "down-token",
		Side:    "SELL",
		Price:   "0.6",
		Size:    "5",
	}
	q.emitFill(trade)

	select {
	case evt := <-q.dashEvts:
		fill, ok := evt.Data.(api.FillEvent)
		if !ok {
			t.Fatalf("evt.Data = %T, want api.FillEvent", evt.Data)
		}
		if fill.TokenType != "Down" {
			t.Fatalf("fill.TokenType = %q, want Down", fill.TokenType)
		}
		if fill.Price != 0.6 || fill.Size != 5 {
			t.Fatalf("fill price/size = %v/%v, want 0.6/5", fill.Price, fill.Size)
		}
	default:
		t.Fatal("expected a fill event on dashEvts")
	}
}

func TestMergeIfProfitableSkipsWhenMergerDeclines(t *testing.T) {
	q := newTestQuoter(t)
	// Fresh shared tracker has zero inventory on both sides, well under
	// MinMergeSize.

	if merged := q.mergeIfProfitable(context.Background()); merged {
		t.Fatal("mergeIfProfitable should return false when the Merger declines")
	}
	if !q.lastMergeAt.IsZero() {
		t.Fatal("lastMergeAt should be untouched when no merge happened")
	}
}

func TestMergeIfProfitableSubmitsAndUpdatesPositionWhenMergerApproves(t *testing.T) {
	q := newTestQuoter(t)

	q.pos.ApplyFill(types.Fill{TradeID: "t-up", TokenID: "up-token", Side: types.BUY, Price: 0.5, Size: 100, Status: types.FillMatched})
	q.pos.ApplyFill(types.Fill{TradeID: "t-down", TokenID: "down-token", Side: types.BUY, Price: 0.4, Size: 100, Status: types.FillMatched})

	before := q.pos.Snapshot(q.market.ConditionID)
	merged := q.mergeIfProfitable(context.Background())
	if !merged {
		t.Fatal("mergeIfProfitable should have approved a merge for balanced, deeply profitable inventory")
	}

	after := q.pos.Snapshot(q.market.ConditionID)
	if after.UpQty >= before.UpQty || after.DownQty >= before.DownQty {
		t.Fatalf("merge should reduce both sides: before=%+v after=%+v", before, after)
	}
	if q.lastMergeAt.IsZero() {
		t.Fatal("lastMergeAt should be set after a successful merge")
	}
}

func TestCancelAllOnExitAttemptsFinalMerge(t *testing.T) {
	q := newTestQuoter(t)
	q.pos.ApplyFill(types.Fill{TradeID: "t-up", TokenID: "up-token", Side: types.BUY, Price: 0.5, Size: 100, Status: types.FillMatched})
	q.pos.ApplyFill(types.Fill{TradeID: "t-down", TokenID: "down-token", Side: types.BUY, Price: 0.4, Size: 100, Status: types.FillMatched})

	q.cancelAllOnExit()

	if q.lastMergeAt.IsZero() {
		t.Fatal("cancelAllOnExit should take an opportunistic final merge when the Merger approves")
	}
}
