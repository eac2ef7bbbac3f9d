// Package orchestrator is the top-level process coordinator: it runs
// the Scanner, spawns and retires one Quoter goroutine per discovered
// market, and routes streaming events to the right market by
// token/condition ID. It owns the two shared WebSocket clients (market
// data and user events) and the single Executor every Quoter writes
// through.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/api"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/exchange"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/executor"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/oms"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/positions"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/quoter"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/reconcile"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/risk"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/store"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/streaming"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// The venue drops connections quiet for ~60s, so PING well inside that
// window; pongTimeout at 3x the interval tolerates two lost replies
// before forcing a reconnect.
const (
	heartbeatInterval = 50 * time.Second
	pongTimeout       = 3 * heartbeatInterval
)

// marketSlot is one actively-quoted market.
type marketSlot struct {
	info    types.MarketInfo
	q       *quoter.Quoter
	cancel  context.CancelFunc
	tradeCh chan types.WSTradeEvent
	orderCh chan types.WSOrderEvent
}

// Orchestrator owns the lifecycle of every Quoter and the shared
// streaming/executor infrastructure they run on top of.
type Orchestrator struct {
	cfg     config.Config
	client  *exchange.Client
	auth    *exchange.Auth
	scanner *Scanner
	riskMgr *risk.Manager
	store   *store.Store
	exec    *executor.Executor
	logger  *slog.Logger

	orders *oms.Store         // process-wide Order State Store
	pos    *positions.Tracker // process-wide Position Tracker

	orderRecon *reconcile.OrderReconciler
	posRecon   *reconcile.PositionReconciler

	mktClient *streaming.Client
	usrClient *streaming.Client

	subsMu       sync.Mutex
	marketTokens map[string]bool
	userMarkets  map[string]bool

	slots   map[string]*marketSlot
	slotsMu sync.RWMutex

	tokenMap   map[string]string // tokenID -> conditionID
	tokenMapMu sync.RWMutex

	dashboardEvents chan api.DashboardEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// The Executor outlives ctx: quoters submit their exit-time cancels
	// while shutting down, so its queue must still drain after cancel().
	execCancel context.CancelFunc
	execDone   chan struct{}
}

// New creates and wires all orchestrator components. Derives L2 API
// credentials via L1 auth if not already configured.
func New(cfg config.Config, logger *slog.Logger) (*Orchestrator, error) {
	auth, err := exchange.NewAuth(cfg)
	if err != nil {
		return nil, err
	}

	client := exchange.NewClient(cfg, auth, logger)

	if !auth.HasL2Credentials() {
		logger.Info("no L2 credentials, deriving API key via L1...")
		creds, err := client.DeriveAPIKey(context.Background())
		if err != nil {
			return nil, err
		}
		auth.SetCredentials(*creds)
	}

	scanner := NewScanner(cfg, logger)
	riskMgr := risk.NewManager(cfg.Risk, logger)
	exec := executor.New(client, logger, 64)

	ordersStore := oms.New()
	posTracker := positions.New()

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	var dashEvents chan api.DashboardEvent
	if cfg.Dashboard.Enabled {
		dashEvents = make(chan api.DashboardEvent, 100)
	}

	o := &Orchestrator{
		cfg:             cfg,
		client:          client,
		auth:            auth,
		scanner:         scanner,
		riskMgr:         riskMgr,
		store:           st,
		exec:            exec,
		logger:          logger.With("component", "orchestrator"),
		orders:          ordersStore,
		pos:             posTracker,
		orderRecon:      reconcile.NewOrderReconciler(client, ordersStore, cfg.Orchestrator.OrderReconcileInterval, logger),
		posRecon:        reconcile.NewPositionReconciler(client, posTracker, cfg.Orchestrator.PositionReconcileInterval, logger),
		marketTokens:    make(map[string]bool),
		userMarkets:     make(map[string]bool),
		slots:           make(map[string]*marketSlot),
		tokenMap:        make(map[string]string),
		dashboardEvents: dashEvents,
		ctx:             ctx,
		cancel:          cancel,
	}

	o.mktClient = streaming.NewClient(
		streaming.NewConfig(cfg.API.WSMarketURL, streaming.MarketRouter{}).
			WithAuth(subscribeFramer{snapshot: o.marketSubscribeFrame}).
			WithHeartbeat(heartbeatInterval, []byte("PING")).
			WithPingDetector(streaming.MarketPing{}).
			WithPongDetector(streaming.MarketPong{}, pongTimeout).
			OnUnrouted(o.routeMarketMessage),
		logger,
	)
	o.usrClient = streaming.NewClient(
		streaming.NewConfig(cfg.API.WSUserURL, streaming.UserRouter{}).
			WithAuth(subscribeFramer{snapshot: o.userSubscribeFrame}).
			WithHeartbeat(heartbeatInterval, []byte("PING")).
			WithPingDetector(streaming.MarketPing{}).
			WithPongDetector(streaming.MarketPong{}, pongTimeout).
			OnRoute(streaming.RouteKey("trade"), o.routeTrade).
			OnRoute(streaming.RouteKey("order"), o.routeOrder),
		logger,
	)

	return o, nil
}

// subscribeFramer adapts a "build the current full subscription frame"
// closure to streaming.AuthProvider: the venue's subscribe message
// doubles as the connection handshake (carrying auth for the user
// channel), and is rebuilt from the live market set on every
// (re)connect so a reconnect never loses a subscription.
type subscribeFramer struct {
	snapshot func() []byte
}

func (s subscribeFramer) AuthFrame(ctx context.Context) ([]byte, error) {
	return s.snapshot(), nil
}

func (o *Orchestrator) marketSubscribeFrame() []byte {
	o.subsMu.Lock()
	ids := make([]string, 0, len(o.marketTokens))
	for id := range o.marketTokens {
		ids = append(ids, id)
	}
	o.subsMu.Unlock()

	data, _ := json.Marshal(types.WSSubscribeMsg{Type: "market", AssetIDs: ids})
	return data
}

func (o *Orchestrator) userSubscribeFrame() []byte {
	o.subsMu.Lock()
	ids := make([]string, 0, len(o.userMarkets))
	for id := range o.userMarkets {
		ids = append(ids, id)
	}
	o.subsMu.Unlock()

	data, _ := json.Marshal(types.WSSubscribeMsg{Type: "user", Auth: o.auth.WSAuthPayload(), Markets: ids})
	return data
}

func (o *Orchestrator) sendMarketUpdate(op string, tokenIDs []string) {
	data, _ := json.Marshal(types.WSUpdateMsg{Operation: op, AssetIDs: tokenIDs})
	if err := o.mktClient.Send(data); err != nil {
		o.logger.Debug("market subscription update not sent, relying on next reconnect", "op", op, "error", err)
	}
}

func (o *Orchestrator) sendUserUpdate(op string, conditionIDs []string) {
	data, _ := json.Marshal(types.WSUpdateMsg{Operation: op, Markets: conditionIDs})
	if err := o.usrClient.Send(data); err != nil {
		o.logger.Debug("user subscription update not sent, relying on next reconnect", "op", op, "error", err)
	}
}

// Start launches all background goroutines: streaming clients,
// scanner, risk manager, the executor, and the market manager loop.
func (o *Orchestrator) Start() error {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.mktClient.Run(o.ctx); err != nil && o.ctx.Err() == nil {
			o.logger.Error("market stream error", "error", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.usrClient.Run(o.ctx); err != nil && o.ctx.Err() == nil {
			o.logger.Error("user stream error", "error", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.scanner.Run(o.ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.riskMgr.Run(o.ctx)
	}()

	execCtx, execCancel := context.WithCancel(context.Background())
	o.execCancel = execCancel
	o.execDone = make(chan struct{})
	go func() {
		defer close(o.execDone)
		o.exec.Run(execCtx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.orderRecon.Run(o.ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.posRecon.Run(o.ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.manageMarkets()
	}()

	return nil
}

// Stop gracefully shuts down every market and closes all resources:
// quoters drain first (each cancels its own market's orders through
// the still-running Executor), then a final sweep cancels anything
// left, then the Executor itself is stopped.
func (o *Orchestrator) Stop() {
	o.logger.Info("shutting down...")
	o.cancel()
	o.wg.Wait()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()
	if res := o.exec.CancelAll(cancelCtx); res.Err != nil {
		o.logger.Error("failed to cancel all orders on shutdown", "error", res.Err)
	}

	o.slotsMu.RLock()
	for id := range o.slots {
		pos := o.pos.Snapshot(id)
		if err := o.store.SavePosition(id, pos); err != nil {
			o.logger.Error("failed to save position", "market", id, "error", err)
		}
	}
	o.slotsMu.RUnlock()

	if o.execCancel != nil {
		o.execCancel()
		<-o.execDone
	}

	o.mktClient.Shutdown(context.Background())
	o.usrClient.Shutdown(context.Background())
	o.store.Close()

	o.logger.Info("shutdown complete")
}

func (o *Orchestrator) manageMarkets() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case result := <-o.scanner.Results():
			o.reconcileMarkets(result)
		case kill := <-o.riskMgr.KillCh():
			o.handleKillSignal(kill)
		}
	}
}

func (o *Orchestrator) reconcileMarkets(result ScanResult) {
	desired := make(map[string]types.MarketAllocation)
	for _, alloc := range result.Markets {
		desired[alloc.Market.ConditionID] = alloc
	}

	o.slotsMu.Lock()
	defer o.slotsMu.Unlock()

	for id := range o.slots {
		if _, ok := desired[id]; !ok {
			o.stopMarketLocked(id)
		}
	}

	for id, alloc := range desired {
		if _, ok := o.slots[id]; !ok {
			o.startMarketLocked(alloc)
		}
	}
}

func (o *Orchestrator) startMarketLocked(alloc types.MarketAllocation) {
	info := alloc.Market
	if info.UpTokenID == "" || info.DownTokenID == "" {
		o.logger.Warn("skipping market with missing token IDs", "slug", info.Slug)
		return
	}

	o.pos.RegisterPair(info.UpTokenID, info.DownTokenID, info.ConditionID)

	q := quoter.New(info, o.cfg, o.exec, o.riskMgr, o.orders, o.pos, o.dashboardEvents, o.logger)

	if pos, err := o.store.LoadPosition(info.ConditionID); err == nil && pos != nil {
		o.pos.SetPosition(info.ConditionID, *pos)
	}

	tradeCh := make(chan types.WSTradeEvent, 64)
	orderCh := make(chan types.WSOrderEvent, 64)

	ctx, cancel := context.WithCancel(o.ctx)

	slot := &marketSlot{info: info, q: q, cancel: cancel, tradeCh: tradeCh, orderCh: orderCh}
	o.slots[info.ConditionID] = slot

	o.tokenMapMu.Lock()
	o.tokenMap[info.UpTokenID] = info.ConditionID
	o.tokenMap[info.DownTokenID] = info.ConditionID
	o.tokenMapMu.Unlock()

	o.subsMu.Lock()
	o.marketTokens[info.UpTokenID] = true
	o.marketTokens[info.DownTokenID] = true
	o.userMarkets[info.ConditionID] = true
	o.subsMu.Unlock()

	o.sendMarketUpdate("subscribe", []string{info.UpTokenID, info.DownTokenID})
	o.sendUserUpdate("subscribe", []string{info.ConditionID})

	for _, tokenID := range []string{info.UpTokenID, info.DownTokenID} {
		resp, err := o.client.GetOrderBook(ctx, tokenID)
		if err != nil {
			o.logger.Error("failed to get initial book", "token", tokenID, "error", err)
			continue
		}
		q.Book(tokenID).ApplySnapshot(resp.Bids, resp.Asks, resp.Hash)
	}

	if orders, err := o.client.GetAllOpenOrders(ctx, info.ConditionID); err == nil {
		o.orders.UpsertREST(orders)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		q.Run(ctx, tradeCh, orderCh)
	}()

	o.logger.Info("market started", "slug", info.Slug, "condition_id", info.ConditionID, "spread", info.Spread, "score", alloc.Score)
}

func (o *Orchestrator) stopMarketLocked(conditionID string) {
	slot, ok := o.slots[conditionID]
	if !ok {
		return
	}

	slot.cancel()

	pos := o.pos.Snapshot(conditionID)
	if err := o.store.SavePosition(conditionID, pos); err != nil {
		o.logger.Error("failed to save position on stop", "market", conditionID, "error", err)
	}

	o.subsMu.Lock()
	delete(o.marketTokens, slot.info.UpTokenID)
	delete(o.marketTokens, slot.info.DownTokenID)
	delete(o.userMarkets, conditionID)
	o.subsMu.Unlock()

	o.sendMarketUpdate("unsubscribe", []string{slot.info.UpTokenID, slot.info.DownTokenID})
	o.sendUserUpdate("unsubscribe", []string{conditionID})
	o.riskMgr.RemoveMarket(conditionID)

	o.tokenMapMu.Lock()
	delete(o.tokenMap, slot.info.UpTokenID)
	delete(o.tokenMap, slot.info.DownTokenID)
	o.tokenMapMu.Unlock()

	delete(o.slots, conditionID)
	o.logger.Info("market stopped", "slug", slot.info.Slug)
}

// handleKillSignal reacts to a risk.KillSignal by pulling resting orders
// as a fast path — the affected Quoter(s) already self-gate on
// riskMgr.IsKillSwitchActive() every tick (see quoter.tick), so no
// market slot is torn down here. Per risk.Manager's own cooldown
// behavior, quoting resumes automatically once IsKillSwitchActive
// clears; this function never calls stopMarketLocked.
func (o *Orchestrator) handleKillSignal(kill risk.KillSignal) {
	o.logger.Error("KILL SIGNAL received", "market", kill.MarketID, "reason", kill.Reason)

	o.emitDashboardEvent(api.DashboardEvent{
		Type:      "kill",
		Timestamp: time.Now(),
		MarketID:  kill.MarketID,
		Data: api.NewKillEvent(
			kill.Reason,
			kill.Reason,
			time.Now().Add(o.cfg.Risk.CooldownAfterKill),
			kill.MarketID,
		),
	})

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()

	if kill.MarketID == "" {
		if res := o.exec.CancelAll(cancelCtx); res.Err != nil {
			o.logger.Error("failed to cancel all orders", "error", res.Err)
		}
		return
	}

	if res := o.exec.CancelAllForToken(cancelCtx, kill.MarketID); res.Err != nil {
		o.logger.Error("failed to cancel market orders", "market", kill.MarketID, "error", res.Err)
	}
}

// routeMarketMessage is the MarketRouter's catch-all: every book and
// price_change RouteKey is a per-token asset ID decided at parse time,
// none of which are registered ahead, so every market-channel message
// arrives here and is dispatched by looking the token up in tokenMap.
func (o *Orchestrator) routeMarketMessage(msg streaming.Message) {
	switch ev := msg.(type) {
	case types.WSBookEvent:
		slot := o.slotForToken(ev.AssetID)
		if slot == nil {
			return
		}
		if b := slot.q.Book(ev.AssetID); b != nil {
			b.ApplySnapshot(ev.Buys, ev.Sells, ev.Hash)
		}
	case types.WSPriceChangeEvent:
		for _, pc := range ev.PriceChanges {
			slot := o.slotForToken(pc.AssetID)
			if slot == nil {
				continue
			}
			b := slot.q.Book(pc.AssetID)
			if b == nil {
				continue
			}
			b.ApplyDelta(parsePrice(pc.Price), parsePrice(pc.Size), pc.Side, pc.Hash)
		}
	}
}

func (o *Orchestrator) slotForToken(tokenID string) *marketSlot {
	o.tokenMapMu.RLock()
	conditionID, ok := o.tokenMap[tokenID]
	o.tokenMapMu.RUnlock()
	if !ok {
		return nil
	}
	o.slotsMu.RLock()
	defer o.slotsMu.RUnlock()
	return o.slots[conditionID]
}

func (o *Orchestrator) routeTrade(msg streaming.Message) {
	trade, ok := msg.(types.WSTradeEvent)
	if !ok {
		return
	}
	o.slotsMu.RLock()
	slot, ok := o.slots[trade.Market]
	o.slotsMu.RUnlock()
	if !ok {
		return
	}
	select {
	case slot.tradeCh <- trade:
	default:
		o.logger.Warn("trade channel full", "market", trade.Market)
	}
}

func (o *Orchestrator) routeOrder(msg streaming.Message) {
	order, ok := msg.(types.WSOrderEvent)
	if !ok {
		return
	}
	o.slotsMu.RLock()
	slot, ok := o.slots[order.Market]
	o.slotsMu.RUnlock()
	if !ok {
		return
	}
	select {
	case slot.orderCh <- order:
	default:
		o.logger.Warn("order channel full", "market", order.Market)
	}
}

// DashboardEvents returns the dashboard event channel (may be nil).
func (o *Orchestrator) DashboardEvents() <-chan api.DashboardEvent {
	return o.dashboardEvents
}

func (o *Orchestrator) emitDashboardEvent(evt api.DashboardEvent) {
	if o.dashboardEvents == nil {
		return
	}
	select {
	case o.dashboardEvents <- evt:
	default:
	}
}

// GetScanStats returns the most recent scan's summary for dashboard access.
func (o *Orchestrator) GetScanStats() types.ScanStats { return o.scanner.Stats() }

// GetRiskManager returns the risk manager for dashboard access.
func (o *Orchestrator) GetRiskManager() *risk.Manager { return o.riskMgr }

// GetMergeOpportunities returns the redeemable Up/Down pairs across
// every registered market, for dashboard access.
func (o *Orchestrator) GetMergeOpportunities() []types.MergeOpportunity {
	return o.pos.MergeOpportunities()
}

// GetMarketsSnapshot returns current state of all active markets for the dashboard.
func (o *Orchestrator) GetMarketsSnapshot() []api.MarketStatus {
	o.slotsMu.RLock()
	defer o.slotsMu.RUnlock()

	result := make([]api.MarketStatus, 0, len(o.slots))
	for _, slot := range o.slots {
		upBook := slot.q.Book(slot.info.UpTokenID)
		mid, _ := upBook.MidPrice()
		bid, _ := upBook.BestBid()
		ask, _ := upBook.BestAsk()

		spread := ask.Price - bid.Price
		var spreadBps float64
		if mid > 0 {
			spreadBps = (spread / mid) * 10000
		}

		pos := o.pos.Snapshot(slot.info.ConditionID)

		posSnapshot := api.PositionSnapshot{
			UpQty:         pos.UpQty,
			DownQty:       pos.DownQty,
			AvgEntryUp:    pos.AvgEntryUp,
			AvgEntryDown:  pos.AvgEntryDown,
			RealizedPnL:   pos.RealizedPnL,
			UnrealizedPnL: pos.UnrealizedPnL,
			ExposureUSD:   o.pos.TotalExposureUSD(slot.info.ConditionID, mid),
			Skew:          o.pos.NetDelta(slot.info.ConditionID),
			LastUpdated:   pos.LastUpdated,
		}

		status := api.MarketStatus{
			ConditionID:  slot.info.ConditionID,
			Slug:         slot.info.Slug,
			Question:     slot.info.Question,
			MidPrice:     mid,
			BestBid:      bid.Price,
			BestAsk:      ask.Price,
			Spread:       spread,
			SpreadBps:    spreadBps,
			LastUpdated:  upBook.LastUpdated(),
			IsStale:      upBook.IsStale(o.cfg.Quoter.StaleBookTimeout),
			Position:     posSnapshot,
			TopUpQuote:   topQuote(o.orders.OrdersForToken(slot.info.UpTokenID)),
			TopDownQuote: topQuote(o.orders.OrdersForToken(slot.info.DownTokenID)),
			TickSize:     parseTickSize(slot.info.TickSize),
			EndDate:      slot.info.EndDate,
			Liquidity:    slot.info.Liquidity,
			Volume24h:    slot.info.Volume24h,
		}

		result = append(result, status)
	}

	return result
}

// topQuote picks the resting order closest to the market (highest price,
// since every quote this bot places is a buy-side maker bid) to summarize
// one token's ladder for the dashboard.
func topQuote(orders []types.TrackedOrder) *api.QuoteInfo {
	var best *types.TrackedOrder
	for i := range orders {
		if best == nil || orders[i].Price > best.Price {
			best = &orders[i]
		}
	}
	if best == nil {
		return nil
	}
	return &api.QuoteInfo{
		Price:     best.Price,
		Size:      best.Remaining(),
		OrderID:   best.OrderID,
		Timestamp: best.CreatedAt,
	}
}

func parseTickSize(ts types.TickSize) float64 {
	switch ts {
	case types.Tick01:
		return 0.1
	case types.Tick001:
		return 0.01
	case types.Tick0001:
		return 0.001
	case types.Tick00001:
		return 0.0001
	default:
		return 0.01
	}
}

func parsePrice(s string) float64 {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return 0
	}
	return f
}
