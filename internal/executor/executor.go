// Package executor is the single writer to the venue's order entry
// API. Every Quoter goroutine computes its own desired ladder, but
// only the Executor actually calls PostOrders/CancelOrders, so two
// markets can never race each other's rate-limit budget or interleave
// a cancel and a place for the same order in the wrong order.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/exchange"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// Batch is one market's worth of desired order-book mutations for one
// tick: cancels, taker orders, and limit placements, always executed
// in that fixed order so a cancel frees margin before a new order
// consumes it and a taker fill is attempted before resting liquidity
// is placed behind it.
type Batch struct {
	MarketID string
	NegRisk  bool
	Cancels  []string
	Takers   []types.UserOrder
	Limits   []types.UserOrder
}

// Result reports what happened to a submitted command.
type Result struct {
	CancelResp *types.CancelResponse
	TakerResp  []types.OrderResponse
	LimitResp  []types.OrderResponse
	MergeResp  *types.MergeResponse
	Err        error
}

// cmdKind tags which venue-write operation a queued command performs.
// Single cancels, limit placements, and taker orders are folded into
// the batch kind since a tick always wants them executed together in
// the fixed cancel-taker-limit order described above.
type cmdKind int

const (
	kindBatch cmdKind = iota
	kindCancelAllForToken
	kindCancelAll
	kindMerge
)

// command is one unit of work on the Executor's serialized queue.
type command struct {
	kind        cmdKind
	batch       Batch
	conditionID string
	pairs       float64
	result      chan Result
}

// Executor owns the sole channel through which orders reach the venue.
type Executor struct {
	client *exchange.Client
	logger *slog.Logger
	queue  chan command
}

// New creates an Executor with a bounded command queue; queueSize
// bounds how many markets' batches can be pending before ExecuteBatch
// blocks, applying natural backpressure under REST rate-limit load.
func New(client *exchange.Client, logger *slog.Logger, queueSize int) *Executor {
	return &Executor{
		client: client,
		logger: logger.With("component", "executor"),
		queue:  make(chan command, queueSize),
	}
}

// Run drains the queue until ctx is cancelled. Exactly one goroutine
// should call Run.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.queue:
			e.execute(ctx, cmd)
		}
	}
}

// submit enqueues cmd and blocks until the Executor's Run goroutine has
// processed it, returning the result synchronously to the caller.
func (e *Executor) submit(ctx context.Context, cmd command) Result {
	cmd.result = make(chan Result, 1)
	select {
	case e.queue <- cmd:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	select {
	case res := <-cmd.result:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// ExecuteBatch enqueues a batch (cancels, then takers, then limits) and
// blocks until it has been processed.
func (e *Executor) ExecuteBatch(ctx context.Context, b Batch) Result {
	return e.submit(ctx, command{kind: kindBatch, batch: b})
}

// CancelAllForToken cancels every resting order for one market. The
// venue's cancel-market-orders endpoint operates per condition id,
// covering both of the market's tokens at once.
func (e *Executor) CancelAllForToken(ctx context.Context, conditionID string) Result {
	return e.submit(ctx, command{kind: kindCancelAllForToken, conditionID: conditionID})
}

// CancelAll cancels every open order across every market.
func (e *Executor) CancelAll(ctx context.Context) Result {
	return e.submit(ctx, command{kind: kindCancelAll})
}

// Merge submits a merge-positions command for pairs of the condition's
// Up/Down tokens.
func (e *Executor) Merge(ctx context.Context, conditionID string, pairs float64) Result {
	return e.submit(ctx, command{kind: kindMerge, conditionID: conditionID, pairs: pairs})
}

func (e *Executor) execute(ctx context.Context, cmd command) {
	var res Result
	switch cmd.kind {
	case kindCancelAllForToken:
		resp, err := e.client.CancelMarketOrders(ctx, cmd.conditionID)
		if err != nil {
			e.logger.Error("cancel market orders failed", "market", cmd.conditionID, "error", err)
			res.Err = fmt.Errorf("cancel market orders: %w", err)
		}
		res.CancelResp = resp
	case kindCancelAll:
		resp, err := e.client.CancelAll(ctx)
		if err != nil {
			e.logger.Error("cancel all failed", "error", err)
			res.Err = fmt.Errorf("cancel all: %w", err)
		}
		res.CancelResp = resp
	case kindMerge:
		resp, err := e.client.MergePositions(ctx, cmd.conditionID, cmd.pairs)
		if err != nil {
			e.logger.Error("merge failed", "market", cmd.conditionID, "pairs", cmd.pairs, "error", err)
			res.Err = fmt.Errorf("merge: %w", err)
		}
		res.MergeResp = resp
	default:
		e.executeBatch(ctx, cmd.batch, &res)
	}

	select {
	case cmd.result <- res:
	default:
	}
}

func (e *Executor) executeBatch(ctx context.Context, b Batch, res *Result) {
	if len(b.Cancels) > 0 {
		resp, err := e.client.CancelOrders(ctx, b.Cancels)
		if err != nil {
			e.logger.Error("batch cancel failed", "market", b.MarketID, "error", err)
			res.Err = fmt.Errorf("cancel: %w", err)
		}
		res.CancelResp = resp
	}

	if len(b.Takers) > 0 {
		resp, err := e.client.PostOrders(ctx, b.Takers, b.NegRisk)
		if err != nil {
			e.logger.Error("batch taker post failed", "market", b.MarketID, "error", err)
			if res.Err == nil {
				res.Err = fmt.Errorf("taker: %w", err)
			}
		}
		res.TakerResp = resp
	}

	if len(b.Limits) > 0 {
		resp, err := e.client.PostOrders(ctx, b.Limits, b.NegRisk)
		if err != nil {
			e.logger.Error("batch limit post failed", "market", b.MarketID, "error", err)
			if res.Err == nil {
				res.Err = fmt.Errorf("limits: %w", err)
			}
		}
		res.LimitResp = resp
	}
}
