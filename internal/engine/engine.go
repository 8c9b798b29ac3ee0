// Package engine is the session supervisor: it wires the gateway, order
// manager, and state store together, runs the periodic timers, and dispatches
// inbound stream events.
//
// All state-mutating work for the instrument runs on one event loop
// goroutine. Stream events and timer ticks are consumed from a single select,
// so fills, trades, reconciliation, and shifts are serialized by
// construction; the manager needs no locks.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gridmex/internal/config"
	"gridmex/internal/exchange"
	"gridmex/internal/grid"
	"gridmex/internal/instrument"
	"gridmex/internal/metrics"
	"gridmex/internal/store"
	"gridmex/pkg/types"
)

// Engine owns the lifecycle of all components and goroutines.
type Engine struct {
	cfg    config.Config
	client *exchange.Client
	feed   *exchange.Feed
	mgr    *grid.Manager
	st     *store.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components. Missing instrument metadata
// is fatal: the engine refuses to start without tick and lot sizes.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	auth := exchange.NewAuth(cfg.API.Key, cfg.API.Secret)
	client := exchange.NewClient(cfg, auth, logger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	info, err := client.GetInstrument(startupCtx, cfg.Instrument.Symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument metadata unavailable: %w", err)
	}
	inst, err := instrument.New(*info)
	if err != nil {
		return nil, err
	}

	if active, err := client.GetActiveInstruments(startupCtx); err != nil {
		logger.Warn("active instrument check failed", "error", err)
	} else if !containsSymbol(active, cfg.Instrument.Symbol) {
		return nil, fmt.Errorf("instrument %s is not active for trading", cfg.Instrument.Symbol)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	mgr := grid.New(cfg, inst, client, st, logger)
	doc, err := st.Load(cfg.Instrument.Symbol)
	if err != nil {
		logger.Error("state load failed, starting fresh", "error", err)
	} else {
		mgr.Restore(doc)
	}

	var feedAuth *exchange.Auth
	if cfg.API.Key != "" {
		feedAuth = auth
	}
	feed := exchange.NewFeed(cfg.API.WSURL, cfg.Instrument.Symbol, feedAuth, logger)
	feed.OnReconnect(func() { metrics.StreamReconnects.Inc() })

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:    cfg,
		client: client,
		feed:   feed,
		mgr:    mgr,
		st:     st,
		logger: logger.With("component", "engine"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the stream feed and the event loop and returns. The event
// loop performs the startup reconciliation before it handles any event, so
// restarts converge with the venue immediately.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.feed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("stream feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()

	return nil
}

// Stop gracefully shuts down: stops the timers and the event loop, waits for
// any in-flight pass with a bounded grace period, flushes state, and closes
// the transport. Resting orders are left on the venue; they are the grid's
// inventory and the next session reconciles them.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		e.logger.Warn("shutdown grace period expired")
	}

	e.mgr.Flush()
	e.feed.Close()
	e.st.Close()

	e.logger.Info("shutdown complete")
}

// run is the single event loop. Every state mutation happens here.
func (e *Engine) run() {
	syncTicker := time.NewTicker(e.cfg.Sync.OrderSyncInterval)
	defer syncTicker.Stop()
	shiftTicker := time.NewTicker(e.cfg.Grid.ShiftCheckInterval)
	defer shiftTicker.Stop()
	statsTicker := time.NewTicker(e.cfg.Metrics.SnapshotInterval)
	defer statsTicker.Stop()

	var atrCh <-chan time.Time
	if e.cfg.ATR.Enabled {
		atrTicker := time.NewTicker(e.cfg.ATR.RecalculationInterval)
		defer atrTicker.Stop()
		atrCh = atrTicker.C
	}

	// Converge with the venue before acting on fresh events.
	e.mgr.Reconcile(e.ctx)
	if e.cfg.ATR.Enabled {
		e.mgr.RecalculateSpacing(e.ctx)
	}

	for {
		select {
		case <-e.ctx.Done():
			return

		case t := <-e.feed.Trades():
			e.mgr.ProcessTrade(e.ctx, t)

		case ex := <-e.feed.Executions():
			if ex.ExecType == "Trade" {
				e.mgr.HandleFill(e.ctx, ex.OrderID, ex.LastPx)
			}

		case ou := <-e.feed.OrderUpdates():
			e.dispatchOrderUpdate(ou)

		case <-syncTicker.C:
			e.mgr.Reconcile(e.ctx)

		case <-atrCh:
			e.mgr.RecalculateSpacing(e.ctx)

		case <-shiftTicker.C:
			e.mgr.CheckShift(e.ctx)

		case <-statsTicker.C:
			e.logStats()
		}
	}
}

// dispatchOrderUpdate routes an order-channel row. A Filled status is an
// authoritative fill notification (deduplicated against the execution
// report); Canceled removes the order locally.
func (e *Engine) dispatchOrderUpdate(ou types.OrderUpdateEvent) {
	switch ou.OrdStatus {
	case "Filled":
		price := ou.AvgPx
		if price <= 0 {
			price = ou.Price
		}
		e.mgr.HandleFill(e.ctx, ou.OrderID, price)
	case "Canceled":
		e.mgr.HandleCancelled(ou.OrderID)
	}
}

func (e *Engine) logStats() {
	stats := e.mgr.Stats()
	winRate := 0.0
	if stats.TotalTrades > 0 {
		winRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	}
	e.logger.Info("session snapshot",
		"pnl", stats.CumulativePnL,
		"trades", stats.TotalTrades,
		"win_rate", winRate,
		"fees", stats.CumulativeFees,
		"volume", stats.CumulativeVolume,
		"active_orders", e.mgr.ActiveCount(),
		"reference", e.mgr.Bounds().Reference,
		"last_price", e.mgr.LastPrice(),
	)
}

func containsSymbol(list []types.Instrument, symbol string) bool {
	for _, i := range list {
		if i.Symbol == symbol {
			return true
		}
	}
	return false
}
