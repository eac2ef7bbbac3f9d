// Polymarket Market Maker — an automated market-making bot for Polymarket
// binary prediction markets, quoting both outcome tokens of an Up/Down
// event from a single offset/skew ladder and merging matched pairs back
// into collateral once accumulated inventory clears a profit margin.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts the orchestrator, waits for SIGINT/SIGTERM
//	orchestrator/orchestrator.go — spawns/retires per-market Quoters, routes streaming events, owns shutdown
//	orchestrator/scanner.go  — polls Gamma API for wide-spread markets, ranks by opportunity score, applies symbol quota
//	quoter/quoter.go         — per-market tick loop: Solver -> Diff -> Executor, taker submission, merge checks
//	solver/solver.go         — offset/skew quote ladder and taker-opportunity detection
//	solver/merger.go         — decides when to redeem matched Up/Down pairs for $1 collateral
//	book/book.go             — local order book mirror fed by WebSocket snapshots + price changes
//	oms/oms.go               — order state store reconstructed from REST + WS order lifecycle events
//	positions/positions.go   — tracks Up/Down positions, avg entry prices, realized/unrealized PnL
//	inflight/tracker.go      — TTL-bounded dedup of pending cancels/placements
//	diff/diff.go             — queue-priority-preserving diff between resting orders and the desired ladder
//	executor/executor.go     — single writer to the venue order-entry API, serializes cancels/takers/limits
//	reconcile/reconcile.go   — periodic REST-truth convergence for order state and positions
//	streaming/streaming.go   — transport-agnostic WebSocket client shared by every feed
//	exchange/client.go       — REST client for the Polymarket CLOB API
//	exchange/auth.go         — L1 (EIP-712) and L2 (HMAC) authentication
//	risk/manager.go          — enforces per-market, global exposure, daily loss, and price-shock limits
//	store/store.go           — JSON file persistence for positions (survives restarts)
//
// How it makes money:
//
//	The bot posts resting quotes on both the Up and Down token of an
//	event simultaneously, skewed by an offset/skew formula around
//	current inventory. When both sides fill it earns the combined
//	spread, and once it holds a matched pair of Up+Down tokens below
//	$1 combined cost, the Merger redeems them directly for $1 of
//	collateral rather than waiting on the book to absorb the exit.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/api"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/internal/orchestrator"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	orch, err := orchestrator.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, orch, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := orch.Start(); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("polymarket market maker started",
		"markets_max", cfg.Risk.MaxMarketsActive,
		"order_size", cfg.Solver.OrderSize,
		"max_exposure", cfg.Risk.MaxGlobalExposure,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	orch.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
