// Gridmex — an automated grid market-making engine for a derivatives venue.
//
// Architecture:
//
//	main.go               — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go      — supervisor: one event loop serializes all state mutations
//	grid/                 — order manager: grid construction, fills, gaps, shifts, reconciliation
//	indicator/            — streaming ATR, RSI, EMA over 1-minute candles
//	trend/analyzer.go     — trend direction, strength, and grid asymmetry factor
//	breakout/detector.go  — candle regime classifier (advisory, pauses placement)
//	exchange/             — REST client + streaming feed with HMAC auth and auto-reconnect
//	instrument/           — tick/lot rounding, contract conversion
//	store/store.go        — crash-safe JSON state persistence (survives restarts)
//
// How it makes money:
//
//	The engine rests a ladder of post-only buys below and sells above a
//	reference price. Each fill immediately quotes the opposing side one
//	grid spacing away, so every oscillation through the grid books the
//	spacing minus two maker fees. ATR widens the spacings when volatility
//	rises, and the trend analyzer skews them so the wide side faces the
//	prevailing move.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gridmex/internal/config"
	"gridmex/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GRIDMEX_CONFIG"); p != "" {
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

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("gridmex started",
		"symbol", cfg.Instrument.Symbol,
		"order_count", cfg.Grid.OrderCount,
		"order_size", cfg.Grid.OrderSize,
		"atr_sizing", cfg.ATR.Enabled,
		"infinity_grid", cfg.Grid.InfinityGridEnabled,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
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
