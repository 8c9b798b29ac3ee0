package indicator

import "gridmex/pkg/types"

// ATR computes the average true range with Wilder smoothing. The first value
// is the simple mean of the first `period` true ranges; afterwards
// atr = (prev*(period-1) + tr) / period. Value is undefined until `period`
// finalized samples have been seen.
type ATR struct {
	period    int
	prevClose float64
	hasClose  bool
	sum       float64
	count     int
	atr       float64

	// live holds the provisional reading including the open candle; it never
	// feeds back into the finalized state.
	live    float64
	hasLive bool
}

// NewATR creates an ATR over the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Reset clears all state.
func (a *ATR) Reset() {
	*a = ATR{period: a.period}
}

// AddFinalSample folds one completed candle into the finalized state.
func (a *ATR) AddFinalSample(c types.Candle) {
	tr := a.trueRange(c)
	a.prevClose = c.Close
	a.hasClose = true
	a.hasLive = false

	a.count++
	switch {
	case a.count < a.period:
		a.sum += tr
	case a.count == a.period:
		a.sum += tr
		a.atr = a.sum / float64(a.period)
	default:
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
}

// UpdateInProgress recomputes the provisional reading for the open candle
// without touching the finalized state.
func (a *ATR) UpdateInProgress(c types.Candle) {
	if !a.Ready() {
		return
	}
	tr := a.trueRange(c)
	a.live = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	a.hasLive = true
}

// Value returns the last finalized reading and whether enough samples have
// been seen.
func (a *ATR) Value() (float64, bool) {
	return a.atr, a.Ready()
}

// Live returns the provisional reading if UpdateInProgress has been called
// since the last finalized sample, otherwise the finalized value.
func (a *ATR) Live() (float64, bool) {
	if a.hasLive {
		return a.live, true
	}
	return a.Value()
}

// Ready reports whether the warm-up period is complete.
func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) trueRange(c types.Candle) float64 {
	tr := c.High - c.Low
	if a.hasClose {
		if d := abs(c.High - a.prevClose); d > tr {
			tr = d
		}
		if d := abs(c.Low - a.prevClose); d > tr {
			tr = d
		}
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
