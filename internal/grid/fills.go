package grid

import (
	"context"
	"math"
	"time"

	"gridmex/internal/metrics"
	"gridmex/pkg/types"
)

// pairTolerance is how close a historical fill price must be to an exit
// order's entry reference to count as the entry half of the cycle.
const pairTolerance = 0.01

// HandleFill applies one authoritative fill notification. The processed-fill
// set makes this at-most-once per remote id: duplicate notifications (an
// execution report plus an order-status update for the same fill) are
// dropped before any mutation.
func (m *Manager) HandleFill(ctx context.Context, remoteID string, execPrice float64) {
	if remoteID == "" {
		return
	}
	if _, dup := m.processedFills[remoteID]; dup {
		m.logger.Debug("duplicate fill dropped", "remote_id", remoteID)
		return
	}

	localID, ok := m.byRemote[remoteID]
	if !ok {
		m.logger.Warn("fill for unknown order", "remote_id", remoteID)
		return
	}
	ord := m.active[localID]

	// Memoize before mutating so a duplicate arriving mid-flight can never
	// replay the mutation.
	m.processedFills[remoteID] = struct{}{}

	if execPrice <= 0 {
		execPrice = ord.Price
	}
	execPrice = m.inst.RoundPriceToTick(execPrice)

	ord.Filled = true
	ord.Price = execPrice

	delete(m.active, localID)
	delete(m.byRemote, remoteID)
	metrics.FillsProcessed.Inc()

	m.logger.Info("fill",
		"side", ord.Side,
		"price", m.inst.PriceString(execPrice),
		"base_qty", ord.BaseQty,
		"remote_id", remoteID,
	)

	// Quote the opposing side one asymmetric spacing away. The new order
	// carries the fill price as its entry reference so its own fill closes
	// this cycle.
	newSide := ord.Side.Opposite()
	spacing := m.asymmetricSpacing(newSide)
	oppPrice := execPrice + spacing
	if newSide == types.Buy {
		oppPrice = execPrice - spacing
	}
	if _, err := m.createOrder(ctx, oppPrice, m.cfg.Grid.OrderSize, newSide, execPrice); err != nil {
		m.logger.Warn("opposing order rejected",
			"side", newSide,
			"price", oppPrice,
			"error", err,
		)
	}

	// A fill that closes a cycle is consumed by that cycle; only fills that
	// opened one (no pair found) become entry candidates for later exits.
	booked := false
	if ord.EntryReferencePrice > 0 {
		booked = m.recordCompletedTrade(*ord)
	}
	if !booked {
		m.history = append(m.history, *ord)
		if len(m.history) > historyCap {
			m.history = m.history[len(m.history)-historyCap:]
		}
	}

	m.persist()
}

// recordCompletedTrade pairs an exit fill with its entry half and books the
// result, reporting whether a trade was booked. The entry is the most recent
// filled order on the opposite side whose price matches the exit's entry
// reference. A missing pair means the exit opened the grid (its reference
// points at the construction price, not at a real fill) and nothing is
// booked.
func (m *Manager) recordCompletedTrade(exit types.Order) bool {
	idx := -1
	for i := len(m.history) - 1; i >= 0; i-- {
		h := m.history[i]
		if h.Side == exit.Side.Opposite() &&
			math.Abs(h.Price-exit.EntryReferencePrice) <= pairTolerance {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.logger.Debug("no paired entry for fill",
			"side", exit.Side,
			"entry_reference", exit.EntryReferencePrice,
		)
		return false
	}

	entry := m.history[idx]
	m.history = append(m.history[:idx], m.history[idx+1:]...)

	size := exit.BaseQty
	var gross float64
	if exit.Side == types.Sell {
		gross = (exit.Price - entry.Price) * size
	} else {
		gross = (entry.Price - exit.Price) * size
	}
	fees := entry.Fee + exit.Fee
	net := gross - fees

	m.completed = append(m.completed, types.CompletedTrade{
		Entry:    entry,
		Exit:     exit,
		Profit:   net,
		Fees:     fees,
		ClosedAt: time.Now().UTC(),
	})

	m.stats.CumulativePnL += net
	m.stats.TotalTrades++
	if net >= 0 {
		m.stats.WinningTrades++
	} else {
		m.stats.LosingTrades++
	}
	m.stats.CumulativeFees += fees
	m.stats.CumulativeVolume += entry.Price*entry.BaseQty + exit.Price*exit.BaseQty
	metrics.TradesCompleted.Inc()

	m.logger.Info("trade completed",
		"entry_side", entry.Side,
		"entry_price", entry.Price,
		"exit_price", exit.Price,
		"gross", gross,
		"net", net,
		"fees", fees,
		"cumulative_pnl", m.stats.CumulativePnL,
	)
	return true
}
