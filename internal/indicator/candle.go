// Package indicator implements streaming technical indicators over 1-minute
// candles: average true range, relative strength index, and exponential
// moving averages. Each indicator is a pure incremental state machine; no
// history is rescanned. A candle Builder buckets raw trade prints into the
// candles the indicators consume.
package indicator

import (
	"time"

	"gridmex/pkg/types"
)

// Interval is the candle bucket width all indicators operate on.
const Interval = time.Minute

// Builder accumulates trade prints into fixed-interval candles. Add returns
// the finished candle when a print crosses into a new bucket.
type Builder struct {
	current *types.Candle
}

// NewBuilder returns an empty candle builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add folds a trade print into the open candle. When the print belongs to a
// later bucket, the open candle is returned as closed and a new one starts.
func (b *Builder) Add(t types.Trade) (closed *types.Candle) {
	start := t.Timestamp.Truncate(Interval)

	if b.current == nil {
		b.current = newCandle(start, t)
		return nil
	}

	if start.After(b.current.Start) {
		closed = b.current
		b.current = newCandle(start, t)
		return closed
	}

	c := b.current
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Size
	return nil
}

// Current returns the open candle, or nil before the first print.
func (b *Builder) Current() *types.Candle {
	return b.current
}

// Reset discards the open candle.
func (b *Builder) Reset() {
	b.current = nil
}

func newCandle(start time.Time, t types.Trade) *types.Candle {
	return &types.Candle{
		Start:  start,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Size,
	}
}

// BucketTrades folds a chronological slice of trades into closed candles,
// including the trailing (still open) bucket. Used when seeding indicators
// from historical trades.
func BucketTrades(trades []types.Trade) []types.Candle {
	var out []types.Candle
	b := NewBuilder()
	for _, t := range trades {
		if closed := b.Add(t); closed != nil {
			out = append(out, *closed)
		}
	}
	if c := b.Current(); c != nil {
		out = append(out, *c)
	}
	return out
}
