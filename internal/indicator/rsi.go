package indicator

import "gridmex/pkg/types"

// RSI computes the relative strength index with Wilder smoothing on candle
// closes. Value is undefined until period+1 samples have been seen (the
// first close only seeds the delta baseline).
type RSI struct {
	period  int
	prev    float64
	hasPrev bool
	count   int

	avgGain float64
	avgLoss float64

	live    float64
	hasLive bool
}

// NewRSI creates an RSI over the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Reset clears all state.
func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

// AddFinalSample folds one completed candle close into the finalized state.
func (r *RSI) AddFinalSample(c types.Candle) {
	r.hasLive = false
	if !r.hasPrev {
		r.prev = c.Close
		r.hasPrev = true
		return
	}

	gain, loss := delta(c.Close - r.prev)
	r.prev = c.Close
	r.count++

	switch {
	case r.count < r.period:
		r.avgGain += gain
		r.avgLoss += loss
	case r.count == r.period:
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	default:
		r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}
}

// UpdateInProgress recomputes the provisional reading for the open candle
// without touching the finalized state.
func (r *RSI) UpdateInProgress(c types.Candle) {
	if !r.Ready() {
		return
	}
	gain, loss := delta(c.Close - r.prev)
	g := (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	l := (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	r.live = rsiFrom(g, l)
	r.hasLive = true
}

// Value returns the last finalized reading and whether enough samples have
// been seen.
func (r *RSI) Value() (float64, bool) {
	if !r.Ready() {
		return 0, false
	}
	return rsiFrom(r.avgGain, r.avgLoss), true
}

// Live returns the provisional reading if UpdateInProgress has been called
// since the last finalized sample, otherwise the finalized value.
func (r *RSI) Live() (float64, bool) {
	if r.hasLive {
		return r.live, true
	}
	return r.Value()
}

// Ready reports whether the warm-up period is complete.
func (r *RSI) Ready() bool {
	return r.count >= r.period
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func delta(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}
