// Package quoter runs the per-market tick loop that binds one market's
// streaming events and local book mirror to the shared order state
// and position stores, computes the Solver's quote ladder, diffs it
// against what's actually resting, and submits the result through the
// shared Executor. It also drives the Merger's cooldown-gated pair
// redemption.
package quoter

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/api"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/book"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/diff"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/executor"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/inflight"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/oms"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/positions"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/risk"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/solver"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// Quoter owns one market's quoting: two Books (Up/Down), one
// In-Flight Tracker, one Merger. Order state and positions live in
// the process-wide stores every Quoter shares; this Quoter only ever
// reads its own market's slice of them, and writes to the venue only
// through the shared Executor. Each read of a shared store or Book
// takes and releases that structure's own lock; no two of those locks
// are held at once.
type Quoter struct {
	market    types.MarketInfo
	cfg       config.QuoterConfig
	solverCfg types.SolverConfig

	upBook   *book.Book
	downBook *book.Book
	oms      *oms.Store         // shared, process-wide
	pos      *positions.Tracker // shared, process-wide
	inflt    *inflight.Tracker
	merger   *solver.Merger
	mergeCfg config.MergerConfig

	exec     *executor.Executor
	riskMgr  *risk.Manager
	dashEvts chan api.DashboardEvent

	lastMergeAt time.Time
	mu          sync.Mutex // guards lastMergeAt only

	logger *slog.Logger
}

// New builds a Quoter for one market on top of the process-wide order
// and position stores. The caller must have registered the market's
// token pair on the tracker before Run so fills route correctly.
func New(
	market types.MarketInfo,
	cfg config.Config,
	exec *executor.Executor,
	riskMgr *risk.Manager,
	ordersStore *oms.Store,
	posTracker *positions.Tracker,
	dashEvts chan api.DashboardEvent,
	logger *slog.Logger,
) *Quoter {
	return &Quoter{
		market:    market,
		cfg:       cfg.Quoter,
		solverCfg: solverConfigFrom(cfg.Solver, market),
		upBook:    book.New(market.UpTokenID),
		downBook:  book.New(market.DownTokenID),
		oms:       ordersStore,
		pos:       posTracker,
		inflt:     inflight.New(cfg.Quoter.InFlightTTL),
		merger:    solver.NewMerger(types.NewMergerConfig(cfg.Merger.MinMergeSize, cfg.Merger.MaxMergeImbalance, cfg.Merger.MinProfitMargin)),
		mergeCfg:  cfg.Merger,
		exec:      exec,
		riskMgr:   riskMgr,
		dashEvts:  dashEvts,
		logger:    logger.With("component", "quoter", "market", market.ConditionID, "slug", market.Slug),
	}
}

func solverConfigFrom(c config.SolverConfig, market types.MarketInfo) types.SolverConfig {
	return types.SolverConfig{
		NumLevels:       c.NumLevels,
		TickSize:        c.TickSize,
		BaseOffset:      c.BaseOffset,
		MinOffset:       c.MinOffset,
		MaxImbalance:    c.MaxImbalance,
		OrderSize:       c.OrderSize,
		SpreadPerLevel:  c.SpreadPerLevel,
		OffsetScaling:   c.OffsetScaling,
		SkewFactor:      c.SkewFactor,
		MinProfitMargin: c.MinProfitMargin,
		MaxPosition:     c.MaxPosition,
	}
}

// Book returns the Book for a given token, or nil if it isn't one of
// this market's two tokens.
func (q *Quoter) Book(tokenID string) *book.Book {
	switch tokenID {
	case q.market.UpTokenID:
		return q.upBook
	case q.market.DownTokenID:
		return q.downBook
	default:
		return nil
	}
}

// Run drives the tick loop and event ingestion until ctx is cancelled.
// On exit it cancels every resting order for this market as a safety net.
func (q *Quoter) Run(ctx context.Context, tradeCh <-chan types.WSTradeEvent, orderCh <-chan types.WSOrderEvent) {
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	defer q.cancelAllOnExit()

	// A market past its resolution time has nothing left to quote; exit
	// without waiting for the scanner to notice it is gone.
	var expiry <-chan time.Time
	if !q.market.EndDate.IsZero() {
		expiryTimer := time.NewTimer(time.Until(q.market.EndDate))
		defer expiryTimer.Stop()
		expiry = expiryTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiry:
			q.logger.Info("market reached resolution time, exiting")
			return
		case trade := <-tradeCh:
			q.pos.ApplyFill(fillFromTrade(trade))
			q.emitFill(trade)
		case order := <-orderCh:
			q.oms.ApplyEvent(order)
			q.emitOrder(order)
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

func fillFromTrade(trade types.WSTradeEvent) types.Fill {
	status := types.FillStatus(strings.ToUpper(trade.Status))
	if status == "" {
		status = types.FillMatched
	}
	return types.Fill{
		TradeID:   trade.ID,
		TokenID:   trade.AssetID,
		Side:      types.Side(trade.Side),
		Price:     parseFloat(trade.Price),
		Size:      parseFloat(trade.Size),
		Status:    status,
		Timestamp: time.Now(),
	}
}

func (q *Quoter) tick(ctx context.Context) {
	if q.upBook.IsStale(q.cfg.StaleBookTimeout) || q.downBook.IsStale(q.cfg.StaleBookTimeout) {
		q.logger.Warn("book stale, pulling all orders")
		q.cancelAll(ctx)
		return
	}

	q.reportRisk()

	if q.riskMgr.IsKillSwitchActive() {
		q.logger.Warn("kill switch active, pulling all orders")
		q.cancelAll(ctx)
		return
	}

	remaining := q.riskMgr.RemainingBudget(q.market.ConditionID)
	if remaining <= 0 {
		q.logger.Info("risk budget exhausted, pulling all orders")
		q.cancelAll(ctx)
		return
	}

	// Sweep the in-flight tracker against the store's current truth, so
	// a confirmed cancel or landed placement stops gating this tick.
	// Scoped to this market's two tokens: the store spans every market.
	open := append(q.oms.OrdersForToken(q.market.UpTokenID), q.oms.OrdersForToken(q.market.DownTokenID)...)
	infos := make([]inflight.OpenOrderInfo, 0, len(open))
	for _, o := range open {
		infos = append(infos, inflight.OpenOrderInfo{OrderID: o.OrderID, TokenID: o.TokenID, Price: o.Price})
	}
	q.inflt.Cleanup(infos)

	in := types.SolverInput{
		UpTokenID:   q.market.UpTokenID,
		DownTokenID: q.market.DownTokenID,
		UpBook:      q.upBook.View(),
		DownBook:    q.downBook.View(),
		Inventory:   q.pos.Inventory(q.market.ConditionID),
	}

	out := solver.Solve(in, q.solverCfg)
	scaleToBudget(out.Ladder.UpQuotes, out.Ladder.DownQuotes, remaining)

	q.quoteToken(ctx, q.market.UpTokenID, out.Ladder.UpQuotes)
	q.quoteToken(ctx, q.market.DownTokenID, out.Ladder.DownQuotes)

	if out.Taker != nil {
		q.submitTaker(ctx, *out.Taker)
	}

	q.maybeMerge(ctx)
}

// scaleToBudget caps the combined notional of every proposed maker quote
// to the risk manager's remaining exposure budget for this market,
// scaling every quote's size down proportionally when the ladder as
// solved would exceed it.
func scaleToBudget(upQuotes, downQuotes []types.Quote, remaining float64) {
	var notional float64
	for _, qt := range upQuotes {
		notional += qt.Price * qt.Size
	}
	for _, qt := range downQuotes {
		notional += qt.Price * qt.Size
	}
	if notional <= remaining || notional == 0 {
		return
	}
	scale := remaining / notional
	for i := range upQuotes {
		upQuotes[i].Size *= scale
	}
	for i := range downQuotes {
		downQuotes[i].Size *= scale
	}
}

func (q *Quoter) quoteToken(ctx context.Context, tokenID string, desired []types.Quote) {
	current := q.oms.OrdersForToken(tokenID)
	cancelIDs, toPlace := diff.Orders(current, desired, tokenID)

	var cancels []string
	for _, id := range cancelIDs {
		if q.inflt.ShouldCancel(id) {
			cancels = append(cancels, id)
		}
	}

	var limits []types.UserOrder
	for _, lo := range toPlace {
		if !q.inflt.ShouldPlace(lo.TokenID, lo.Price) {
			continue
		}
		limits = append(limits, types.UserOrder{
			TokenID:    lo.TokenID,
			Price:      lo.Price,
			Size:       lo.Size,
			Side:       lo.Side,
			OrderType:  types.OrderTypeGTC,
			TickSize:   q.market.TickSize,
			FeeRateBps: 0,
		})
	}

	if len(cancels) == 0 && len(limits) == 0 {
		return
	}

	res := q.exec.ExecuteBatch(ctx, executor.Batch{
		MarketID: q.market.ConditionID,
		NegRisk:  q.market.NegRisk,
		Cancels:  cancels,
		Limits:   limits,
	})
	if res.Err != nil {
		q.logger.Error("batch failed", "token", tokenID, "error", res.Err)
		for _, id := range cancels {
			q.inflt.CancelFailed(id)
		}
		for _, lo := range limits {
			q.inflt.PlacementFailed(lo.TokenID, lo.Price)
		}
		return
	}
	if res.CancelResp != nil {
		q.inflt.CancelsConfirmed(res.CancelResp.Canceled)
		for _, id := range res.CancelResp.Canceled {
			q.oms.RemoveConfirmedCancel(id)
		}
	}
}

func (q *Quoter) submitTaker(ctx context.Context, t types.TakerOrder) {
	order := types.UserOrder{
		TokenID:   t.TokenID,
		Price:     t.Price,
		Size:      t.Size,
		Side:      types.BUY,
		OrderType: types.OrderTypeFOK,
		TickSize:  q.market.TickSize,
	}
	res := q.exec.ExecuteBatch(ctx, executor.Batch{
		MarketID: q.market.ConditionID,
		NegRisk:  q.market.NegRisk,
		Takers:   []types.UserOrder{order},
	})
	if res.Err != nil {
		q.logger.Warn("taker order failed", "token", t.TokenID, "error", res.Err)
		return
	}
	q.logger.Info("taker order submitted", "token", t.TokenID, "price", t.Price, "size", t.Size, "score", t.Score)
}

func (q *Quoter) maybeMerge(ctx context.Context) {
	q.mu.Lock()
	sinceLast := time.Since(q.lastMergeAt)
	q.mu.Unlock()
	if sinceLast < q.mergeCfg.Cooldown {
		return
	}
	q.mergeIfProfitable(ctx)
}

// mergeIfProfitable submits a merge command when the Merger policy clears,
// bypassing the cooldown. Used both by the tick loop (after the cooldown
// check) and opportunistically on exit, where there is no next tick to
// wait for the cooldown to expire.
func (q *Quoter) mergeIfProfitable(ctx context.Context) bool {
	decision := q.merger.CheckMerge(q.pos.Inventory(q.market.ConditionID))
	if !decision.ShouldMerge {
		return false
	}

	res := q.exec.Merge(ctx, q.market.ConditionID, decision.PairsToMerge)
	if res.Err != nil {
		q.logger.Error("merge failed", "pairs", decision.PairsToMerge, "error", res.Err)
		return false
	}

	q.mu.Lock()
	q.lastMergeAt = time.Now()
	q.mu.Unlock()

	q.logger.Info("merged positions", "pairs", decision.PairsToMerge, "expected_profit", decision.ExpectedProfit, "tx", res.MergeResp.TxHash)

	pos := q.pos.Snapshot(q.market.ConditionID)
	pos.UpQty -= decision.PairsToMerge
	pos.DownQty -= decision.PairsToMerge
	q.pos.SetPosition(q.market.ConditionID, pos)
	return true
}

func (q *Quoter) reportRisk() {
	mid, _ := q.upBook.MidPrice()
	pos := q.pos.Snapshot(q.market.ConditionID)
	q.riskMgr.Report(risk.PositionReport{
		MarketID:      q.market.ConditionID,
		UpQty:         pos.UpQty,
		DownQty:       pos.DownQty,
		MidPrice:      mid,
		ExposureUSD:   q.pos.TotalExposureUSD(q.market.ConditionID, mid),
		UnrealizedPnL: pos.UnrealizedPnL,
		RealizedPnL:   pos.RealizedPnL,
		Timestamp:     time.Now(),
	})
	q.emitEvent("position", api.NewPositionEvent(q.toAPIPosition(pos), q.market.Slug, mid))
}

// tokenType maps an asset ID belonging to this market to its dashboard
// label, or "" if the asset ID isn't one of this market's two tokens.
func (q *Quoter) tokenType(assetID string) string {
	switch assetID {
	case q.market.UpTokenID:
		return "Up"
	case q.market.DownTokenID:
		return "Down"
	default:
		return ""
	}
}

func (q *Quoter) toAPIPosition(pos positions.Position) api.PositionSnapshot {
	mid, _ := q.upBook.MidPrice()
	return api.PositionSnapshot{
		UpQty:         pos.UpQty,
		DownQty:       pos.DownQty,
		AvgEntryUp:    pos.AvgEntryUp,
		AvgEntryDown:  pos.AvgEntryDown,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
		ExposureUSD:   q.pos.TotalExposureUSD(q.market.ConditionID, mid),
		Skew:          q.pos.NetDelta(q.market.ConditionID),
		LastUpdated:   pos.LastUpdated,
	}
}

func (q *Quoter) emitFill(trade types.WSTradeEvent) {
	pos := q.pos.Snapshot(q.market.ConditionID)
	evt := api.NewFillEvent(trade, q.toAPIPosition(pos), q.market.Slug, q.tokenType(trade.AssetID),
		parseFloat(trade.Price), parseFloat(trade.Size))
	q.emitEvent("fill", evt)
}

func (q *Quoter) emitOrder(order types.WSOrderEvent) {
	evt := api.NewOrderEvent(order.ID, order.Type, order.Side, q.tokenType(order.AssetID),
		parseFloat(order.Price), parseFloat(order.OriginalSize))
	q.emitEvent("order", evt)
}

func (q *Quoter) emitEvent(kind string, data interface{}) {
	if q.dashEvts == nil {
		return
	}
	evt := api.DashboardEvent{
		Type:      kind,
		Timestamp: time.Now(),
		MarketID:  q.market.ConditionID,
		Data:      data,
	}
	select {
	case q.dashEvts <- evt:
	default:
	}
}

func (q *Quoter) cancelAll(ctx context.Context) {
	res := q.exec.CancelAllForToken(ctx, q.market.ConditionID)
	if res.Err != nil {
		q.logger.Error("cancel market orders failed", "error", res.Err)
		return
	}
	for _, id := range res.CancelResp.Canceled {
		q.oms.RemoveConfirmedCancel(id)
		q.inflt.CancelConfirmed(id)
	}
}

// cancelAllOnExit pulls every resting order for this market and, per the
// Quoter's exit contract, takes one opportunistic shot at a profitable
// merge before the socket is torn down — there is no future tick to let
// the regular cooldown-gated path catch it.
func (q *Quoter) cancelAllOnExit() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q.cancelAll(ctx)
	q.mergeIfProfitable(ctx)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
