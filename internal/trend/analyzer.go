// Package trend turns streaming indicator readings into a direction,
// a strength score, and a grid asymmetry factor.
//
// Direction comes from the fast/slow EMA cross, with an RSI override:
// overbought readings downgrade bullish and push neutral toward bearish,
// oversold does the reverse. Strength blends the EMA divergence (70%) with
// the RSI extremity (30%). The asymmetry factor stretches the grid in the
// trend direction, up to a configured maximum, and is the reciprocal for
// bearish trends.
package trend

import (
	"math"

	"gridmex/internal/config"
	"gridmex/internal/indicator"
	"gridmex/pkg/types"
)

// Analysis is the analyzer's output for one evaluation.
type Analysis struct {
	Direction       types.TrendDirection
	Strength        float64 // [0, 1]
	AsymmetryFactor float64 // 1.0 when neutral
}

// Neutral is the warm-up result: no direction, zero strength, symmetric grid.
func Neutral() Analysis {
	return Analysis{Direction: types.TrendNeutral, Strength: 0, AsymmetryFactor: 1.0}
}

// Analyzer owns the RSI and EMA pair and derives an Analysis on demand.
type Analyzer struct {
	cfg     config.TrendConfig
	rsi     *indicator.RSI
	fastEMA *indicator.EMA
	slowEMA *indicator.EMA
}

// NewAnalyzer builds an analyzer from the configured periods.
func NewAnalyzer(cfg config.TrendConfig) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		rsi:     indicator.NewRSI(cfg.RSIPeriod),
		fastEMA: indicator.NewEMA(cfg.FastEMAPeriod),
		slowEMA: indicator.NewEMA(cfg.SlowEMAPeriod),
	}
}

// Reset clears all indicator state.
func (a *Analyzer) Reset() {
	a.rsi.Reset()
	a.fastEMA.Reset()
	a.slowEMA.Reset()
}

// AddFinalSample feeds one completed candle to all indicators.
func (a *Analyzer) AddFinalSample(c types.Candle) {
	a.rsi.AddFinalSample(c)
	a.fastEMA.AddFinalSample(c)
	a.slowEMA.AddFinalSample(c)
}

// UpdateInProgress refreshes the provisional readings for the open candle.
func (a *Analyzer) UpdateInProgress(c types.Candle) {
	a.rsi.UpdateInProgress(c)
	a.fastEMA.UpdateInProgress(c)
	a.slowEMA.UpdateInProgress(c)
}

// Analyze computes the current trend. Until every indicator has warmed up
// the result is Neutral().
func (a *Analyzer) Analyze() Analysis {
	rsi, rsiOK := a.rsi.Value()
	fast, fastOK := a.fastEMA.Value()
	slow, slowOK := a.slowEMA.Value()
	if !rsiOK || !fastOK || !slowOK {
		return Neutral()
	}

	dir := types.TrendNeutral
	switch {
	case fast > slow:
		dir = types.TrendBullish
	case fast < slow:
		dir = types.TrendBearish
	}

	// RSI override: extremes pull the EMA direction back toward reversal.
	switch {
	case rsi >= a.cfg.RSIOverbought:
		if dir == types.TrendBullish {
			dir = types.TrendNeutral
		} else if dir == types.TrendNeutral {
			dir = types.TrendBearish
		}
	case rsi <= a.cfg.RSIOversold:
		if dir == types.TrendBearish {
			dir = types.TrendNeutral
		} else if dir == types.TrendNeutral {
			dir = types.TrendBullish
		}
	}

	emaStrength := 0.0
	if mid := (fast + slow) / 2; mid != 0 {
		emaStrength = math.Min(math.Abs(fast-slow)/mid*10, 1)
	}

	rsiStrength := 0.0
	switch {
	case rsi >= a.cfg.RSIOverbought:
		rsiStrength = math.Min((rsi-a.cfg.RSIOverbought)/(100-a.cfg.RSIOverbought), 1)
	case rsi <= a.cfg.RSIOversold:
		rsiStrength = math.Min((a.cfg.RSIOversold-rsi)/a.cfg.RSIOversold, 1)
	}

	strength := 0.7*emaStrength + 0.3*rsiStrength

	return Analysis{
		Direction:       dir,
		Strength:        strength,
		AsymmetryFactor: a.asymmetryFactor(dir, strength),
	}
}

// asymmetryFactor maps strength to a grid stretch factor. Strength at or
// above 0.7 pins the configured maximum; below that the factor interpolates
// linearly from 1. Bearish trends use the reciprocal so the wide side flips.
func (a *Analyzer) asymmetryFactor(dir types.TrendDirection, strength float64) float64 {
	if dir == types.TrendNeutral {
		return 1.0
	}

	maxF := a.cfg.MaxAsymmetryFactor
	var f float64
	if strength >= 0.7 {
		f = maxF
	} else {
		f = 1 + (strength/0.7)*(maxF-1)
	}

	if dir == types.TrendBearish {
		return 1 / f
	}
	return f
}
