package grid

import (
	"context"
	"math"
	"time"

	"gridmex/internal/indicator"
	"gridmex/pkg/types"
)

// tradesFetchLimit caps the historical trade pull per recalculation.
const tradesFetchLimit = 1000

// RecalculateSpacing refreshes the grid geometry from recent volatility and
// trend: pull the lookback window of public trades, bucket them into
// candles, run them through the indicators, and derive the base spacing from
// ATR with the asymmetry factor applied on top. The running grid is not
// rewritten; subsequent fills, gap fills, and shifts observe the new
// spacings.
func (m *Manager) RecalculateSpacing(ctx context.Context) {
	if !m.cfg.ATR.Enabled {
		return
	}

	trades, err := m.gw.GetHistoricalTrades(ctx, m.inst.Symbol(), m.cfg.ATR.HistoricalTradesLookback, tradesFetchLimit)
	if err != nil {
		m.logger.Error("spacing recalc: trades fetch failed", "error", err)
		return
	}
	candles := indicator.BucketTrades(trades)
	if len(candles) == 0 {
		m.logger.Warn("spacing recalc: no trades in lookback window")
		return
	}

	// Rebuild the streaming state from the authoritative history. The last
	// bucket is still open and only contributes provisionally.
	m.atr.Reset()
	m.trendAz.Reset()
	last := len(candles) - 1
	for i, c := range candles {
		if i < last {
			m.atr.AddFinalSample(c)
			m.trendAz.AddFinalSample(c)
		} else {
			m.atr.UpdateInProgress(c)
			m.trendAz.UpdateInProgress(c)
		}
	}

	atrVal, ok := m.atr.Value()
	if !ok {
		m.logger.Info("spacing recalc: indicators warming up",
			"candles", len(candles),
			"needed", m.cfg.ATR.Period,
		)
		return
	}

	base := m.inst.RoundPriceToTick(atrVal * m.cfg.ATR.Multiplier)
	base = math.Max(m.cfg.ATR.MinGridDistance, math.Min(m.cfg.ATR.MaxGridDistance, base))

	analysis := m.trendAz.Analyze()

	up, down := base, base
	if analysis.Direction != types.TrendNeutral && analysis.AsymmetryFactor != 1 {
		up = m.inst.RoundPriceToTick(base * analysis.AsymmetryFactor)
		down = m.inst.RoundPriceToTick(base / analysis.AsymmetryFactor)
	}

	m.sizing = types.GridSizingConfig{
		CurrentDistance:     base,
		LastATRValue:        atrVal,
		LastRecalculation:   time.Now().UTC(),
		TrendDirection:      analysis.Direction,
		TrendStrength:       analysis.Strength,
		AsymmetryFactor:     analysis.AsymmetryFactor,
		UpwardGridSpacing:   up,
		DownwardGridSpacing: down,
	}
	m.persist()

	m.logger.Info("grid spacing recalculated",
		"atr", atrVal,
		"base", base,
		"up", up,
		"down", down,
		"trend", analysis.Direction,
		"strength", analysis.Strength,
		"asymmetry", analysis.AsymmetryFactor,
	)
}
