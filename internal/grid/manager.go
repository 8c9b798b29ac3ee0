// Package grid implements the order manager: the two-sided grid of resting
// limit orders, the fill-reaction state machine, gap filling, the infinity
// shift, spacing recalculation, and reconciliation against the venue.
//
// The manager is single-threaded by contract: every state-mutating method is
// invoked from the supervisor's one event loop, so there is no internal
// locking. The venue is the source of truth; local state is a convergent
// cache that each reconciliation pass realigns.
package grid

import (
	"context"
	"log/slog"
	"math"
	"time"

	"gridmex/internal/breakout"
	"gridmex/internal/config"
	"gridmex/internal/indicator"
	"gridmex/internal/instrument"
	"gridmex/internal/metrics"
	"gridmex/internal/store"
	"gridmex/internal/trend"
	"gridmex/pkg/types"
)

// historyCap bounds the filled-order history kept for cycle pairing.
const historyCap = 200

// Manager owns the active-order collection and all grid state for one
// instrument.
type Manager struct {
	cfg    config.Config
	inst   *instrument.Model
	gw     Gateway
	st     *store.Store
	logger *slog.Logger
	dryRun bool

	// Monotonic local order id sequence.
	nextLocalID int64

	// active is the resting order set, keyed by local id; byRemote indexes
	// it by the venue's order id once acknowledged.
	active   map[int64]*types.Order
	byRemote map[string]int64

	// processedFills memoizes remote ids whose fill has been accounted for,
	// making fill processing at-most-once across duplicate notifications.
	processedFills map[string]struct{}

	// history holds filled-order snapshots for PnL pairing, newest last.
	history []types.Order

	completed []types.CompletedTrade
	stats     types.SessionStats
	sizing    types.GridSizingConfig
	bounds    types.GridBounds
	hasGrid   bool
	lastPrice float64

	// initializing guards grid construction against recursive invocation;
	// lastInit throttles consecutive constructions.
	initializing bool
	lastInit     time.Time

	lastShiftCheck time.Time

	// pausedUntil suspends new grid placement after a breakout detection.
	pausedUntil time.Time

	candles  *indicator.Builder
	atr      *indicator.ATR
	trendAz  *trend.Analyzer
	detector *breakout.Detector
}

// New creates a manager with empty state. Call Restore before Start-time use
// to adopt a persisted document.
func New(cfg config.Config, inst *instrument.Model, gw Gateway, st *store.Store, logger *slog.Logger) *Manager {
	base := cfg.Grid.OrderDistance
	return &Manager{
		cfg:            cfg,
		inst:           inst,
		gw:             gw,
		st:             st,
		logger:         logger.With("component", "grid", "symbol", inst.Symbol()),
		dryRun:         cfg.DryRun,
		nextLocalID:    1,
		active:         make(map[int64]*types.Order),
		byRemote:       make(map[string]int64),
		processedFills: make(map[string]struct{}),
		sizing: types.GridSizingConfig{
			CurrentDistance:     base,
			TrendDirection:      types.TrendNeutral,
			AsymmetryFactor:     1.0,
			UpwardGridSpacing:   base,
			DownwardGridSpacing: base,
		},
		candles:  indicator.NewBuilder(),
		atr:      indicator.NewATR(cfg.ATR.Period),
		trendAz:  trend.NewAnalyzer(cfg.Trend),
		detector: breakout.NewDetector(cfg.Breakout),
	}
}

// Restore adopts a persisted document: active orders, completed trades,
// session statistics, grid sizing, and the reference price.
func (m *Manager) Restore(doc store.Document) {
	for i := range doc.ActiveOrders {
		o := doc.ActiveOrders[i]
		m.active[o.LocalID] = &o
		if o.RemoteID != "" {
			m.byRemote[o.RemoteID] = o.LocalID
		}
		if o.LocalID >= m.nextLocalID {
			m.nextLocalID = o.LocalID + 1
		}
	}
	m.completed = doc.CompletedTrades
	m.stats = types.SessionStats{
		CumulativePnL:    doc.CumulativePnL,
		TotalTrades:      doc.TotalTrades,
		WinningTrades:    doc.WinningTrades,
		LosingTrades:     doc.LosingTrades,
		CumulativeFees:   doc.CumulativeFees,
		CumulativeVolume: doc.CumulativeVolume,
		SessionStart:     doc.SessionStartTime,
	}
	if doc.GridSizing.CurrentDistance > 0 {
		m.sizing = doc.GridSizing
	}
	if doc.ReferencePrice > 0 {
		u, d := m.spacings()
		n := float64(m.cfg.Grid.OrderCount)
		m.bounds = types.GridBounds{
			Reference: doc.ReferencePrice,
			Lower:     math.Max(1, doc.ReferencePrice-n*d),
			Upper:     doc.ReferencePrice + n*u,
		}
		m.hasGrid = len(m.active) > 0
	}
	m.logger.Info("state restored",
		"active_orders", len(m.active),
		"completed_trades", len(m.completed),
		"reference", doc.ReferencePrice,
	)
}

// ProcessTrade folds one public trade print into the engine: candles and
// indicators first, then grid lifecycle. The first print initializes the
// grid; a print far outside the envelope triggers reinitialization.
func (m *Manager) ProcessTrade(ctx context.Context, t types.TradeEvent) {
	if t.Symbol != m.inst.Symbol() || t.Price <= 0 {
		return
	}
	m.lastPrice = t.Price

	trade := types.Trade{
		Timestamp: t.Timestamp,
		Symbol:    t.Symbol,
		Side:      t.Side,
		Price:     t.Price,
		Size:      t.Size,
	}
	if closed := m.candles.Add(trade); closed != nil {
		m.onClosedCandle(*closed)
	} else if cur := m.candles.Current(); cur != nil {
		m.atr.UpdateInProgress(*cur)
		m.trendAz.UpdateInProgress(*cur)
	}

	if !m.hasGrid {
		m.InitializeGrid(ctx, t.Price)
		return
	}

	// Reinitialize when price has escaped the whole envelope.
	escape := float64(m.cfg.Grid.OrderCount) * m.baseSpacing()
	if math.Abs(t.Price-m.bounds.Reference) > escape {
		m.logger.Info("price escaped grid, reinitializing",
			"price", t.Price,
			"reference", m.bounds.Reference,
		)
		m.InitializeGrid(ctx, t.Price)
	}
}

func (m *Manager) onClosedCandle(c types.Candle) {
	m.atr.AddFinalSample(c)
	m.trendAz.AddFinalSample(c)

	if !m.cfg.Breakout.Enabled {
		return
	}
	atrVal, _ := m.atr.Value()
	cls := m.detector.OnCandle(c, atrVal)
	if cls.IsBreakout {
		m.pausedUntil = time.Now().Add(m.cfg.Breakout.Cooldown)
		m.logger.Warn("breakout detected, pausing grid placement",
			"direction", cls.Direction,
			"strength", cls.Strength,
			"until", m.pausedUntil,
		)
	}
}

// HandleCancelled marks a venue-cancelled order and removes it locally.
func (m *Manager) HandleCancelled(remoteID string) {
	localID, ok := m.byRemote[remoteID]
	if !ok {
		return
	}
	delete(m.active, localID)
	delete(m.byRemote, remoteID)
	m.logger.Info("order cancelled remotely", "remote_id", remoteID)
	m.persist()
}

// Stats returns a copy of the session statistics.
func (m *Manager) Stats() types.SessionStats { return m.stats }

// Bounds returns the current grid envelope.
func (m *Manager) Bounds() types.GridBounds { return m.bounds }

// Sizing returns the current grid sizing configuration.
func (m *Manager) Sizing() types.GridSizingConfig { return m.sizing }

// ActiveCount returns the number of resting orders.
func (m *Manager) ActiveCount() int { return len(m.active) }

// LastPrice returns the most recent trade print price.
func (m *Manager) LastPrice() float64 { return m.lastPrice }

// ActiveOrders returns a snapshot of the resting order set.
func (m *Manager) ActiveOrders() []types.Order {
	out := make([]types.Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	return out
}

// spacings returns the effective upward and downward spacings, falling back
// to the base distance before the first recalculation.
func (m *Manager) spacings() (u, d float64) {
	u, d = m.sizing.UpwardGridSpacing, m.sizing.DownwardGridSpacing
	base := m.baseSpacing()
	if u <= 0 {
		u = base
	}
	if d <= 0 {
		d = base
	}
	return u, d
}

func (m *Manager) baseSpacing() float64 {
	if m.sizing.CurrentDistance > 0 {
		return m.sizing.CurrentDistance
	}
	return m.cfg.Grid.OrderDistance
}

// asymmetricSpacing returns the spacing applied when quoting the given side:
// upward spacing above the fill for sells, downward spacing below for buys.
func (m *Manager) asymmetricSpacing(side types.Side) float64 {
	u, d := m.spacings()
	if side == types.Sell {
		return u
	}
	return d
}

// paused reports whether breakout cooldown currently suspends placement.
func (m *Manager) paused() bool {
	return time.Now().Before(m.pausedUntil)
}

// Flush persists the current state; called once more on shutdown.
func (m *Manager) Flush() {
	m.persist()
}

// persist writes the full document. Store failures degrade durability but
// never stop the engine; the next successful write re-converges.
func (m *Manager) persist() {
	doc := store.Document{
		ActiveOrders:     m.ActiveOrders(),
		CompletedTrades:  m.completed,
		ReferencePrice:   m.bounds.Reference,
		CumulativePnL:    m.stats.CumulativePnL,
		TotalTrades:      m.stats.TotalTrades,
		WinningTrades:    m.stats.WinningTrades,
		LosingTrades:     m.stats.LosingTrades,
		CumulativeFees:   m.stats.CumulativeFees,
		CumulativeVolume: m.stats.CumulativeVolume,
		SessionStartTime: m.stats.SessionStart,
		GridSizing:       m.sizing,
	}
	if err := m.st.Save(m.inst.Symbol(), doc); err != nil {
		m.logger.Error("state persist failed", "error", err)
	}

	metrics.ActiveOrders.Set(float64(len(m.active)))
	metrics.GridReference.Set(m.bounds.Reference)
	metrics.CumulativePnL.Set(m.stats.CumulativePnL)
	metrics.CumulativeFees.Set(m.stats.CumulativeFees)
}
