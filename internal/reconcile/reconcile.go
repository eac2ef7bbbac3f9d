// Package reconcile runs the two periodic REST-truth convergence
// tasks: the Order State Store and Position Tracker are built from a
// WebSocket stream that can silently drop an event during a reconnect,
// so each is periodically re-synced against a REST snapshot rather
// than trusted forever. Exactly one instance of each reconciler runs
// per process, covering every known market; REST wins every conflict.
package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/exchange"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/oms"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/positions"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// OrderReconciler periodically replaces the shared Order State Store's
// contents with the REST-truth open-order set across every market:
// orders open locally but absent from REST are dropped (the venue
// cancelled or filled them and the stream echo was lost), orders in
// REST but absent locally are inserted.
type OrderReconciler struct {
	client   *exchange.Client
	store    *oms.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewOrderReconciler builds the process's single order reconciler.
func NewOrderReconciler(client *exchange.Client, store *oms.Store, interval time.Duration, logger *slog.Logger) *OrderReconciler {
	return &OrderReconciler{
		client:   client,
		store:    store,
		interval: interval,
		logger:   logger.With("component", "reconcile_orders"),
	}
}

// Run reconciles once immediately, then on every interval tick until
// ctx is cancelled.
func (r *OrderReconciler) Run(ctx context.Context) {
	_ = r.Reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Reconcile(ctx)
		}
	}
}

// Reconcile fetches the full open-order set across all markets and
// rehydrates the store with it.
func (r *OrderReconciler) Reconcile(ctx context.Context) error {
	orders, err := r.client.GetAllOpenOrders(ctx, "")
	if err != nil {
		r.logger.Warn("order reconcile fetch failed", "error", err)
		return err
	}

	r.store.HydrateREST(orders)

	r.logger.Debug("orders reconciled", "count", len(orders))
	return nil
}

// PositionReconciler periodically compares the locally accumulated
// Position Tracker holdings against the venue's on-chain truth and
// corrects drift (a missed fill event, a redemption the bot didn't
// initiate) by overwriting the tracked quantities — average cost is
// preserved locally since the venue doesn't report it per-side.
type PositionReconciler struct {
	client   *exchange.Client
	tracker  *positions.Tracker
	interval time.Duration
	logger   *slog.Logger
}

// NewPositionReconciler builds the process's single position reconciler.
func NewPositionReconciler(client *exchange.Client, tracker *positions.Tracker, interval time.Duration, logger *slog.Logger) *PositionReconciler {
	return &PositionReconciler{
		client:   client,
		tracker:  tracker,
		interval: interval,
		logger:   logger.With("component", "reconcile_positions"),
	}
}

// Run reconciles once immediately, then on every interval tick until
// ctx is cancelled.
func (r *PositionReconciler) Run(ctx context.Context) {
	_ = r.Reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Reconcile(ctx)
		}
	}
}

// Reconcile fetches all on-chain holdings and overwrites every
// registered token's quantity where it has drifted from venue truth.
// A registered token absent from REST is a zero holding, not a skip —
// a redemption or transfer the bot never saw must converge too.
func (r *PositionReconciler) Reconcile(ctx context.Context) error {
	var all []types.PositionHolding
	cursor := ""
	for {
		page, err := r.client.GetPositions(ctx, "", cursor)
		if err != nil {
			r.logger.Warn("position reconcile fetch failed", "error", err)
			return err
		}
		all = append(all, page.Positions...)
		if page.Next == "" || page.Next == cursor {
			break
		}
		cursor = page.Next
	}

	holdings := make(map[string]float64, len(all))
	for _, h := range all {
		holdings[h.AssetID] = parseFloat(h.Size)
	}

	for _, tokenID := range r.tracker.Tokens() {
		venue := holdings[tokenID]
		local := r.tracker.TokenQty(tokenID)
		if drift(local, venue) {
			r.logger.Warn("position drift corrected", "token", tokenID, "local", local, "venue", venue)
			r.tracker.SetTokenQty(tokenID, venue)
		}
	}
	return nil
}

func drift(local, venue float64) bool {
	const tolerance = 0.01
	diff := local - venue
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
