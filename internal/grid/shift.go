package grid

import (
	"context"
	"math"
	"time"

	"gridmex/internal/metrics"
	"gridmex/pkg/types"
)

// CheckShift evaluates the infinity-grid policy: when price has crossed the
// configured fraction of the grid's range toward a bound, the grid slides in
// that direction, retaining the configured overlap of existing orders.
// Invocations closer together than the minimum interval are ignored.
func (m *Manager) CheckShift(ctx context.Context) {
	if !m.cfg.Grid.InfinityGridEnabled || !m.hasGrid {
		return
	}
	if time.Since(m.lastShiftCheck) < m.cfg.Grid.ShiftMinInterval {
		return
	}
	m.lastShiftCheck = time.Now()

	price := m.lastPrice
	if price <= 0 {
		return
	}

	theta := m.cfg.Grid.ShiftThreshold
	ref := m.bounds.Reference
	effLower := ref - (1-theta)*(ref-m.bounds.Lower)
	effUpper := ref + (1-theta)*(m.bounds.Upper-ref)

	switch {
	case price > effUpper:
		m.shift(ctx, true)
	case price < effLower:
		m.shift(ctx, false)
	}
}

// shift slides the grid one step in the given direction: cancel the
// non-overlap share of orders on the retreating side, move the reference by
// the non-overlap share of the range, and extend the advancing side past its
// previous extreme with the current asymmetric spacings.
func (m *Manager) shift(ctx context.Context, up bool) {
	overlap := m.cfg.Grid.ShiftOverlap
	n := m.cfg.Grid.OrderCount
	u, d := m.spacings()
	ref := m.bounds.Reference

	turnover := int(math.Ceil((1 - overlap) * float64(n)))
	if turnover <= 0 {
		return
	}

	buys, sells := m.sortedLadder()

	var newRef float64
	if up {
		newRef = m.inst.RoundPriceToTick(ref + (m.bounds.Upper-ref)*(1-overlap))

		// Retreating side: the lowest buys.
		lowestFirst := make([]types.Order, len(buys))
		copy(lowestFirst, buys)
		for i, j := 0, len(lowestFirst)-1; i < j; i, j = i+1, j-1 {
			lowestFirst[i], lowestFirst[j] = lowestFirst[j], lowestFirst[i]
		}
		m.cancelOrders(ctx, lowestFirst, turnover)

		// Advancing side: extend above the previous highest sell.
		top := newRef
		if len(sells) > 0 {
			top = sells[len(sells)-1].Price
		}
		for i := 1; i <= turnover; i++ {
			p := top + u*float64(i)
			if _, err := m.createOrder(ctx, p, m.cfg.Grid.OrderSize, types.Sell, newRef); err != nil {
				m.logger.Warn("shift sell rejected", "price", p, "error", err)
			}
		}
	} else {
		newRef = m.inst.RoundPriceToTick(ref - (ref-m.bounds.Lower)*(1-overlap))

		// Retreating side: the highest sells.
		highestFirst := make([]types.Order, len(sells))
		copy(highestFirst, sells)
		for i, j := 0, len(highestFirst)-1; i < j; i, j = i+1, j-1 {
			highestFirst[i], highestFirst[j] = highestFirst[j], highestFirst[i]
		}
		m.cancelOrders(ctx, highestFirst, turnover)

		// Advancing side: extend below the previous lowest buy.
		bottom := newRef
		if len(buys) > 0 {
			bottom = buys[len(buys)-1].Price
		}
		for i := 1; i <= turnover; i++ {
			p := bottom - d*float64(i)
			if p <= 0 {
				continue
			}
			if _, err := m.createOrder(ctx, p, m.cfg.Grid.OrderSize, types.Buy, 0); err != nil {
				m.logger.Warn("shift buy rejected", "price", p, "error", err)
			}
		}
	}

	m.bounds = types.GridBounds{
		Reference: newRef,
		Lower:     math.Max(1, newRef-float64(n)*d),
		Upper:     newRef + float64(n)*u,
	}
	metrics.GridShifts.Inc()
	m.persist()

	m.logger.Info("grid shifted",
		"direction", directionName(up),
		"old_reference", ref,
		"new_reference", newRef,
		"lower", m.bounds.Lower,
		"upper", m.bounds.Upper,
	)
}

// cancelOrders cancels up to count orders from the front of the slice,
// removing each from the local set on success. One failed cancel never
// aborts the rest.
func (m *Manager) cancelOrders(ctx context.Context, ordered []types.Order, count int) {
	for i := 0; i < len(ordered) && i < count; i++ {
		o := ordered[i]
		if o.RemoteID == "" {
			continue
		}
		if _, err := m.gw.CancelOrder(ctx, o.RemoteID); err != nil {
			m.logger.Warn("cancel failed", "remote_id", o.RemoteID, "error", err)
			continue
		}
		delete(m.active, o.LocalID)
		delete(m.byRemote, o.RemoteID)
	}
}

func directionName(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
