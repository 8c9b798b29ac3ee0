package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"testing"
	"time"

	"gridmex/internal/config"
	"gridmex/internal/instrument"
	"gridmex/internal/store"
	"gridmex/pkg/types"
)

// fakeGateway is an in-memory venue: placements land in open, cancels remove
// them, and tests inject filled rows, positions, and historical trades.
type fakeGateway struct {
	seq       int
	open      map[string]types.RemoteOrder
	filled    []types.RemoteOrder
	position  *types.Position
	posErr    error
	trades    []types.Trade
	placeErr  error
	cancelled []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{open: make(map[string]types.RemoteOrder)}
}

func (g *fakeGateway) GetOpenOrders(_ context.Context, _ string) ([]types.RemoteOrder, error) {
	out := make([]types.RemoteOrder, 0, len(g.open))
	for _, ro := range g.open {
		out = append(out, ro)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (g *fakeGateway) GetRecentFilledOrders(_ context.Context, _ string) ([]types.RemoteOrder, error) {
	return g.filled, nil
}

func (g *fakeGateway) PlaceLimitOrder(_ context.Context, symbol string, side types.Side, price, qty float64) (*types.RemoteOrder, error) {
	if g.placeErr != nil {
		return nil, g.placeErr
	}
	g.seq++
	ro := types.RemoteOrder{
		OrderID:   fmt.Sprintf("r-%d", g.seq),
		Symbol:    symbol,
		Side:      string(side),
		Price:     price,
		OrderQty:  qty,
		OrdStatus: "New",
		Timestamp: time.Now(),
	}
	g.open[ro.OrderID] = ro
	return &ro, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, remoteID string) (*types.RemoteOrder, error) {
	ro, ok := g.open[remoteID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", remoteID)
	}
	delete(g.open, remoteID)
	g.cancelled = append(g.cancelled, remoteID)
	ro.OrdStatus = "Canceled"
	return &ro, nil
}

func (g *fakeGateway) CancelAllOrders(_ context.Context, _ string) ([]types.RemoteOrder, error) {
	out := make([]types.RemoteOrder, 0, len(g.open))
	for id, ro := range g.open {
		ro.OrdStatus = "Canceled"
		out = append(out, ro)
		delete(g.open, id)
	}
	return out, nil
}

func (g *fakeGateway) GetPosition(_ context.Context, _ string) (*types.Position, error) {
	if g.posErr != nil {
		return nil, g.posErr
	}
	return g.position, nil
}

func (g *fakeGateway) GetHistoricalTrades(_ context.Context, _ string, _ time.Duration, _ int) ([]types.Trade, error) {
	return g.trades, nil
}

// findOpen locates the single open fake order at a price and side.
func (g *fakeGateway) findOpen(t *testing.T, side types.Side, price float64) types.RemoteOrder {
	t.Helper()
	for _, ro := range g.open {
		if ro.Side == string(side) && ro.Price == price {
			return ro
		}
	}
	t.Fatalf("no open %s order at %v", side, price)
	return types.RemoteOrder{}
}

func testGridConfig() config.Config {
	return config.Config{
		Instrument: config.InstrumentConfig{Symbol: "XBTUSD"},
		Grid: config.GridConfig{
			OrderCount:            3,
			OrderDistance:         70,
			OrderSize:             0.01,
			MaxPositionSizeBase:   1000,
			MaxOpenOrders:         20,
			GapDetectionTolerance: 0, // gap filling off unless a test enables it
			InfinityGridEnabled:   true,
			ShiftThreshold:        0.2,
			ShiftOverlap:          0.5,
			ShiftCheckInterval:    15 * time.Second,
			ShiftMinInterval:      10 * time.Second,
			InitThrottle:          5 * time.Second,
			FeeRate:               0.0002,
		},
		ATR: config.ATRConfig{
			Enabled:                  false,
			Period:                   14,
			Multiplier:               1.5,
			MinGridDistance:          25,
			MaxGridDistance:          300,
			HistoricalTradesLookback: time.Hour,
		},
		Trend: config.TrendConfig{
			RSIPeriod:          14,
			FastEMAPeriod:      8,
			SlowEMAPeriod:      21,
			RSIOverbought:      70,
			RSIOversold:        30,
			MaxAsymmetryFactor: 1.5,
		},
		Breakout: config.BreakoutConfig{
			ATRRatioThreshold:    1.8,
			BodyWickThreshold:    0.7,
			VolumeRatioThreshold: 1.5,
			Cooldown:             10 * time.Minute,
		},
	}
}

func testInstrument(t *testing.T) *instrument.Model {
	t.Helper()
	inst, err := instrument.New(types.Instrument{
		Symbol:   "XBTUSD",
		TickSize: 1,
		LotSize:  0.001,
		MakerFee: 0.0002,
	})
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	return inst
}

func setupManager(t *testing.T, cfg config.Config) (*Manager, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(cfg, testInstrument(t), gw, st, logger), gw
}

func pricesBySide(m *Manager) (buys, sells []float64) {
	for _, o := range m.ActiveOrders() {
		if o.Side == types.Buy {
			buys = append(buys, o.Price)
		} else {
			sells = append(sells, o.Price)
		}
	}
	sort.Float64s(buys)
	sort.Float64s(sells)
	return buys, sells
}

func equalPrices(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestGridInitializationNeutral(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	buys, sells := pricesBySide(m)
	if !equalPrices(buys, []float64{29790, 29860, 29930}) {
		t.Errorf("buys = %v, want [29790 29860 29930]", buys)
	}
	if !equalPrices(sells, []float64{30070, 30140, 30210}) {
		t.Errorf("sells = %v, want [30070 30140 30210]", sells)
	}

	b := m.Bounds()
	if b.Reference != 30000 || b.Lower != 29790 || b.Upper != 30210 {
		t.Errorf("bounds = %+v, want ref 30000 [29790, 30210]", b)
	}
	if len(gw.open) != 6 {
		t.Errorf("venue has %d open orders, want 6", len(gw.open))
	}
}

func TestGridInitializationThrottled(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	ref := m.Bounds().Reference

	// A price jump within the throttle window must not rebuild.
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 31000, Size: 1, Timestamp: time.Now()})
	if m.Bounds().Reference != ref {
		t.Errorf("reference moved to %v during throttle window", m.Bounds().Reference)
	}
}

func TestGridInitializationSkipsNonPositiveBuys(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	// Reference low enough that every buy rung lands at or below zero.
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 50, Size: 1, Timestamp: time.Now()})

	buys, sells := pricesBySide(m)
	if len(buys) != 0 {
		t.Errorf("buys = %v, want none below minimum tick", buys)
	}
	if len(sells) != 3 {
		t.Errorf("sells = %v, want 3", sells)
	}
}

func TestSymmetricCycle(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// The 30070 sell fills; the engine must quote a buy at 30000.
	sell := gw.findOpen(t, types.Sell, 30070)
	delete(gw.open, sell.OrderID)
	m.HandleFill(ctx, sell.OrderID, 30070)

	buy := gw.findOpen(t, types.Buy, 30000)

	// That buy fills; the engine quotes a sell at 30070 and books the cycle.
	delete(gw.open, buy.OrderID)
	m.HandleFill(ctx, buy.OrderID, 30000)

	gw.findOpen(t, types.Sell, 30070)

	stats := m.Stats()
	if stats.TotalTrades != 1 {
		t.Fatalf("completed trades = %d, want 1", stats.TotalTrades)
	}

	size := 0.01
	gross := (30070.0 - 30000.0) * size
	fees := 30070*size*0.0002 + 30000*size*0.0002
	wantNet := gross - fees
	if math.Abs(stats.CumulativePnL-wantNet) > 1e-9 {
		t.Errorf("pnl = %v, want %v", stats.CumulativePnL, wantNet)
	}
	if stats.WinningTrades != 1 || stats.LosingTrades != 0 {
		t.Errorf("win/loss = %d/%d, want 1/0", stats.WinningTrades, stats.LosingTrades)
	}
	if math.Abs(stats.CumulativeFees-fees) > 1e-9 {
		t.Errorf("fees = %v, want %v", stats.CumulativeFees, fees)
	}
}

func TestAsymmetricGridConstruction(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.Restore(store.Document{
		GridSizing: types.GridSizingConfig{
			CurrentDistance:     70,
			TrendDirection:      types.TrendBullish,
			TrendStrength:       0.8,
			AsymmetryFactor:     1.4,
			UpwardGridSpacing:   98,
			DownwardGridSpacing: 50,
		},
	})

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	buys, sells := pricesBySide(m)
	if !equalPrices(buys, []float64{29850, 29900, 29950}) {
		t.Errorf("buys = %v, want [29850 29900 29950]", buys)
	}
	if !equalPrices(sells, []float64{30098, 30196, 30294}) {
		t.Errorf("sells = %v, want [30098 30196 30294]", sells)
	}
}

func TestDuplicateFillIsDropped(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	sell := gw.findOpen(t, types.Sell, 30070)
	delete(gw.open, sell.OrderID)

	// Execution report and order-status update arrive for the same fill.
	m.HandleFill(ctx, sell.OrderID, 30070)
	countAfterFirst := m.ActiveCount()
	m.HandleFill(ctx, sell.OrderID, 30070)

	if m.ActiveCount() != countAfterFirst {
		t.Errorf("active count changed on duplicate: %d -> %d", countAfterFirst, m.ActiveCount())
	}

	// Exactly one opposing buy at 30000.
	buys, _ := pricesBySide(m)
	n := 0
	for _, p := range buys {
		if p == 30000 {
			n++
		}
	}
	if n != 1 {
		t.Errorf("opposing buys at 30000 = %d, want 1", n)
	}
}

func TestInfinityShiftUp(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	oldBounds := m.Bounds()

	// Price crosses the effective upper bound (30000 + 0.8*210 = 30168).
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30170, Size: 1, Timestamp: time.Now()})
	m.CheckShift(ctx)

	b := m.Bounds()
	if b.Reference != 30105 {
		t.Errorf("new reference = %v, want 30105", b.Reference)
	}
	if !(b.Reference > oldBounds.Reference && b.Reference < oldBounds.Upper) {
		t.Errorf("reference %v outside (%v, %v)", b.Reference, oldBounds.Reference, oldBounds.Upper)
	}

	// The two lowest buys are gone, one remains.
	buys, sells := pricesBySide(m)
	if !equalPrices(buys, []float64{29930}) {
		t.Errorf("buys = %v, want [29930]", buys)
	}
	// Two new sells extend above the previous highest (30210).
	if !equalPrices(sells, []float64{30070, 30140, 30210, 30280, 30350}) {
		t.Errorf("sells = %v, want extension above 30210", sells)
	}
	if len(gw.cancelled) != 2 {
		t.Errorf("cancelled %d orders, want 2", len(gw.cancelled))
	}
}

func TestShiftThrottledByMinInterval(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30170, Size: 1, Timestamp: time.Now()})

	m.CheckShift(ctx)
	ref := m.Bounds().Reference

	// Immediately after a check, another one is a no-op even if price moved.
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30400, Size: 1, Timestamp: time.Now()})
	m.CheckShift(ctx)
	if m.Bounds().Reference != ref {
		t.Errorf("second shift ran inside min interval")
	}
}

func TestReconcileDropsMissingOrder(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// The venue loses one order.
	lost := gw.findOpen(t, types.Sell, 30140)
	delete(gw.open, lost.OrderID)

	m.Reconcile(ctx)

	if m.ActiveCount() != 5 {
		t.Errorf("active = %d after heal, want 5", m.ActiveCount())
	}
	for _, o := range m.ActiveOrders() {
		if o.RemoteID == lost.OrderID {
			t.Errorf("order %s still present after reconcile", lost.OrderID)
		}
	}
}

func TestReconcileReplaysMissedFill(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// A sell filled while the stream was down.
	sell := gw.findOpen(t, types.Sell, 30070)
	delete(gw.open, sell.OrderID)
	sell.OrdStatus = "Filled"
	sell.AvgPx = 30070
	gw.filled = []types.RemoteOrder{sell}

	m.Reconcile(ctx)

	// The fill path ran: opposing buy quoted at 30000.
	gw.findOpen(t, types.Buy, 30000)
}

func TestReconcileIdempotentOnCleanState(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	before := m.ActiveOrders()

	m.Reconcile(ctx)

	after := m.ActiveOrders()
	if len(before) != len(after) {
		t.Fatalf("active count changed: %d -> %d", len(before), len(after))
	}
	byRemote := make(map[string]types.Order)
	for _, o := range before {
		byRemote[o.RemoteID] = o
	}
	for _, o := range after {
		prev, ok := byRemote[o.RemoteID]
		if !ok || prev.Price != o.Price || prev.Side != o.Side {
			t.Errorf("order %s mutated by clean reconcile", o.RemoteID)
		}
	}
}

func TestReconcileRebuildsFromRemote(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	// Venue has a ladder; local state is empty (lost state file).
	for _, p := range []float64{29930, 29860} {
		gw.PlaceLimitOrder(ctx, "XBTUSD", types.Buy, p, 0.01)
	}
	for _, p := range []float64{30070, 30140} {
		gw.PlaceLimitOrder(ctx, "XBTUSD", types.Sell, p, 0.01)
	}

	m.Reconcile(ctx)

	if m.ActiveCount() != 4 {
		t.Fatalf("active = %d after rebuild, want 4", m.ActiveCount())
	}
	if m.Bounds().Reference != 30000 {
		t.Errorf("derived reference = %v, want 30000", m.Bounds().Reference)
	}
}

func TestGapFilling(t *testing.T) {
	t.Parallel()
	cfg := testGridConfig()
	cfg.Grid.GapDetectionTolerance = 1.5
	m, gw := setupManager(t, cfg)
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// Remove the middle sell: 30070 .. 30210 is a 140 gap > 1.5*70.
	lost := gw.findOpen(t, types.Sell, 30140)
	delete(gw.open, lost.OrderID)

	m.Reconcile(ctx)

	_, sells := pricesBySide(m)
	if !equalPrices(sells, []float64{30070, 30140, 30210}) {
		t.Errorf("sells = %v, want gap refilled at 30140", sells)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()
	m, _ := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	if _, err := m.createOrder(ctx, -5, 0.01, types.Buy, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("negative price: err = %v, want ErrInvalidPrice", err)
	}
	// 29930 already holds a buy.
	if _, err := m.createOrder(ctx, 29930, 0.01, types.Buy, 0); !errors.Is(err, ErrDuplicatePricePoint) {
		t.Errorf("duplicate: err = %v, want ErrDuplicatePricePoint", err)
	}
	// A fresh price point passes.
	if _, err := m.createOrder(ctx, 29500, 0.01, types.Buy, 0); err != nil {
		t.Errorf("fresh price rejected: %v", err)
	}
}

func TestOrderLimitEnforced(t *testing.T) {
	t.Parallel()
	cfg := testGridConfig()
	cfg.Grid.MaxOpenOrders = 4
	m, _ := setupManager(t, cfg)
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	if m.ActiveCount() > 4 {
		t.Errorf("active = %d, exceeds cap 4", m.ActiveCount())
	}
	if _, err := m.createOrder(ctx, 28000, 0.01, types.Buy, 0); !errors.Is(err, ErrOrderLimitExceeded) {
		t.Errorf("err = %v, want ErrOrderLimitExceeded", err)
	}
}

func TestPositionLimit(t *testing.T) {
	t.Parallel()
	cfg := testGridConfig()
	cfg.Grid.MaxPositionSizeBase = 0.05
	m, gw := setupManager(t, cfg)
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// Long 0.049 base: the next buy would breach the cap, a sell reduces.
	gw.position = &types.Position{Symbol: "XBTUSD", CurrentQty: 0.049}

	if _, err := m.createOrder(ctx, 29500, 0.01, types.Buy, 0); !errors.Is(err, ErrPositionLimitExceeded) {
		t.Errorf("additive buy: err = %v, want ErrPositionLimitExceeded", err)
	}
	if _, err := m.createOrder(ctx, 31000, 0.01, types.Sell, 0); err != nil {
		t.Errorf("reducing sell rejected: %v", err)
	}
}

func TestPositionQueryFailureRefuses(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	gw.posErr = errors.New("venue unreachable")
	if _, err := m.createOrder(ctx, 29500, 0.01, types.Buy, 0); !errors.Is(err, ErrPositionLimitExceeded) {
		t.Errorf("err = %v, want conservative ErrPositionLimitExceeded", err)
	}
}

func TestQuantizationInvariants(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000.4, Size: 1, Timestamp: time.Now()})

	for _, ro := range gw.open {
		if ro.Price != math.Trunc(ro.Price) {
			t.Errorf("price %v is not a tick multiple", ro.Price)
		}
		lots := ro.OrderQty / 0.001
		if math.Abs(lots-math.Round(lots)) > 1e-6 {
			t.Errorf("qty %v is not a lot multiple", ro.OrderQty)
		}
	}
}

func TestRestartRestoresActiveSet(t *testing.T) {
	t.Parallel()
	cfg := testGridConfig()
	gw := newFakeGateway()
	dir := t.TempDir()
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()

	m1 := New(cfg, testInstrument(t), gw, st, logger)
	m1.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	before := m1.ActiveOrders()

	// Restart: a fresh manager restores from the same store and reconciles.
	m2 := New(cfg, testInstrument(t), gw, st, logger)
	doc, err := st.Load("XBTUSD")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m2.Restore(doc)
	m2.Reconcile(ctx)

	after := m2.ActiveOrders()
	if len(after) != len(before) {
		t.Fatalf("restored %d orders, want %d", len(after), len(before))
	}
	want := make(map[string]bool)
	for _, o := range before {
		want[o.RemoteID] = true
	}
	for _, o := range after {
		if !want[o.RemoteID] {
			t.Errorf("unexpected order %s after restart", o.RemoteID)
		}
	}
}

func TestBreakoutCooldownPausesPlacement(t *testing.T) {
	t.Parallel()
	cfg := testGridConfig()
	cfg.Breakout.Enabled = true
	m, _ := setupManager(t, cfg)
	ctx := context.Background()

	// Cooldown in force; classification thresholds are covered in the
	// breakout package tests.
	m.pausedUntil = time.Now().Add(time.Minute)

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	if m.ActiveCount() != 0 {
		t.Errorf("grid built during breakout cooldown: %d orders", m.ActiveCount())
	}

	// Cooldown expired: the next print builds the grid.
	m.pausedUntil = time.Now().Add(-time.Second)
	m.lastInit = time.Time{}
	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})
	if m.ActiveCount() != 6 {
		t.Errorf("grid not built after cooldown: %d orders", m.ActiveCount())
	}
}

func TestProfitAccountingConsistency(t *testing.T) {
	t.Parallel()
	m, gw := setupManager(t, testGridConfig())
	ctx := context.Background()

	m.ProcessTrade(ctx, types.TradeEvent{Symbol: "XBTUSD", Price: 30000, Size: 1, Timestamp: time.Now()})

	// Run two full cycles through the 30070 rung.
	for i := 0; i < 2; i++ {
		sell := gw.findOpen(t, types.Sell, 30070)
		delete(gw.open, sell.OrderID)
		m.HandleFill(ctx, sell.OrderID, 30070)

		buy := gw.findOpen(t, types.Buy, 30000)
		delete(gw.open, buy.OrderID)
		m.HandleFill(ctx, buy.OrderID, 30000)
	}

	stats := m.Stats()
	var sumProfit, sumFees, check float64
	for _, ct := range m.completed {
		sumProfit += ct.Profit
		sumFees += ct.Fees
		var gross float64
		if ct.Exit.Side == types.Sell {
			gross = (ct.Exit.Price - ct.Entry.Price) * ct.Exit.BaseQty
		} else {
			gross = (ct.Entry.Price - ct.Exit.Price) * ct.Exit.BaseQty
		}
		check += gross - ct.Fees
	}
	if math.Abs(sumProfit-check) > 1e-9 {
		t.Errorf("profit sum %v does not match entry/exit values %v", sumProfit, check)
	}
	if math.Abs(stats.CumulativePnL-sumProfit) > 1e-9 {
		t.Errorf("stats pnl %v != trade sum %v", stats.CumulativePnL, sumProfit)
	}
	if math.Abs(stats.CumulativeFees-sumFees) > 1e-9 {
		t.Errorf("stats fees %v != trade fee sum %v", stats.CumulativeFees, sumFees)
	}
	if stats.TotalTrades != 2 {
		t.Errorf("trades = %d, want 2", stats.TotalTrades)
	}
}
