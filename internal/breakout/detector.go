// Package breakout classifies closed candles into range-bound or breakout
// regimes. A breakout is a candle whose body dwarfs the recent true range,
// whose body dominates its wicks, that prints on outsized volume, and that
// closes beyond the prior window's extreme. The classification is advisory:
// the grid core uses it to pause new placements for a cooldown, it never
// triggers directional orders.
package breakout

import (
	"gridmex/internal/config"
	"gridmex/pkg/types"
)

const (
	// candleWindow is how many prior candles feed the extreme lookback.
	candleWindow = 5
	// volumeWindow is how many prior volumes feed the average.
	volumeWindow = 20
)

// Direction of a candle or breakout.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Classification is the detector's verdict on one closed candle.
type Classification struct {
	IsBreakout      bool
	Direction       Direction
	Strength        float64
	CandleSizeToATR float64
	BodyToWick      float64
	VolumeRatio     float64
	BreakingThrough bool
}

// Detector keeps the sliding candle and volume windows.
type Detector struct {
	cfg     config.BreakoutConfig
	candles []types.Candle // most recent last, len <= candleWindow+1
	volumes []float64      // most recent last, len <= volumeWindow
}

// NewDetector creates a detector with the configured thresholds.
func NewDetector(cfg config.BreakoutConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Reset drops all window state.
func (d *Detector) Reset() {
	d.candles = nil
	d.volumes = nil
}

// OnCandle classifies one closed candle. lastATR is the current finalized
// ATR reading; zero disables the size ratio (no breakout can fire).
func (d *Detector) OnCandle(c types.Candle, lastATR float64) Classification {
	prior := d.candles
	priorVolumes := d.volumes

	d.candles = append(d.candles, c)
	if len(d.candles) > candleWindow+1 {
		d.candles = d.candles[1:]
	}
	d.volumes = append(d.volumes, c.Volume)
	if len(d.volumes) > volumeWindow {
		d.volumes = d.volumes[1:]
	}

	body := abs(c.Close - c.Open)
	wick := (c.High - c.Low) - body
	bodyToWick := body
	if wick > 0 {
		bodyToWick = body / wick
	}

	dir := Down
	if c.Close > c.Open {
		dir = Up
	}

	breakingThrough := false
	if len(prior) >= candleWindow {
		window := prior[len(prior)-candleWindow:]
		if dir == Up {
			breakingThrough = c.Close > maxHigh(window)
		} else {
			breakingThrough = c.Close < minLow(window)
		}
	}

	volumeRatio := 0.0
	if avg := mean(priorVolumes); avg > 0 {
		volumeRatio = c.Volume / avg
	}

	sizeToATR := 0.0
	if lastATR > 0 {
		sizeToATR = body / lastATR
	}

	confirmation := 0.8
	if breakingThrough {
		confirmation = 1.5
	}
	strength := sizeToATR * bodyToWick * volumeRatio * confirmation

	return Classification{
		IsBreakout: sizeToATR >= d.cfg.ATRRatioThreshold &&
			bodyToWick >= d.cfg.BodyWickThreshold &&
			volumeRatio >= d.cfg.VolumeRatioThreshold &&
			breakingThrough,
		Direction:       dir,
		Strength:        strength,
		CandleSizeToATR: sizeToATR,
		BodyToWick:      bodyToWick,
		VolumeRatio:     volumeRatio,
		BreakingThrough: breakingThrough,
	}
}

func maxHigh(cs []types.Candle) float64 {
	m := cs[0].High
	for _, c := range cs[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(cs []types.Candle) float64 {
	m := cs[0].Low
	for _, c := range cs[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
