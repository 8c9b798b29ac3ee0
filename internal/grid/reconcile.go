package grid

import (
	"context"
	"math"
	"sort"
	"time"

	"gridmex/pkg/types"
)

// Reconcile realigns the local active set with the venue's authoritative
// view: missed fills are replayed through the fill path, an empty local set
// is rebuilt from the remote one, and local orders the venue no longer knows
// are dropped. Gap filling runs afterwards on the converged set.
func (m *Manager) Reconcile(ctx context.Context) {
	symbol := m.inst.Symbol()

	filled, err := m.gw.GetRecentFilledOrders(ctx, symbol)
	if err != nil {
		m.logger.Warn("reconcile: filled orders query failed", "error", err)
	} else {
		for _, ro := range filled {
			localID, ok := m.byRemote[ro.OrderID]
			if !ok {
				continue
			}
			if m.active[localID].Filled {
				continue
			}
			price := ro.AvgPx
			if price <= 0 {
				price = ro.Price
			}
			m.logger.Info("reconcile: replaying missed fill", "remote_id", ro.OrderID)
			m.HandleFill(ctx, ro.OrderID, price)
		}
	}

	// The open set is fetched after fill replay so opposing orders the
	// replay just placed are part of the convergence snapshot.
	open, err := m.gw.GetOpenOrders(ctx, symbol)
	if err != nil {
		m.logger.Error("reconcile: open orders query failed", "error", err)
		return
	}

	remote := make(map[string]types.RemoteOrder, len(open))
	for _, ro := range open {
		remote[ro.OrderID] = ro
	}

	if len(m.active) == 0 && len(open) > 0 {
		m.rebuildFromRemote(open)
	} else {
		m.dropDiverged(remote)
	}

	m.persist()
	m.fillGaps(ctx)
}

// rebuildFromRemote adopts the venue's open orders as the local active set,
// deriving fresh local ids and recovering base quantities from contract
// quantities.
func (m *Manager) rebuildFromRemote(open []types.RemoteOrder) {
	for _, ro := range open {
		base := m.inst.ContractsToBase(ro.OrderQty, ro.Price)
		ord := &types.Order{
			LocalID:     m.nextLocalID,
			RemoteID:    ro.OrderID,
			Side:        types.Side(ro.Side),
			Price:       ro.Price,
			BaseQty:     base,
			ContractQty: ro.OrderQty,
			Fee:         ro.Price * base * m.feeRate(),
			CreatedAt:   ro.Timestamp,
		}
		m.nextLocalID++
		m.active[ord.LocalID] = ord
		m.byRemote[ord.RemoteID] = ord.LocalID
	}
	// A rebuild without a persisted reference re-centers on the ladder.
	if m.bounds.Reference == 0 && len(open) > 0 {
		buys, sells := m.sortedLadder()
		var ref float64
		switch {
		case len(buys) > 0 && len(sells) > 0:
			ref = m.inst.RoundPriceToTick((buys[0].Price + sells[0].Price) / 2)
		case m.lastPrice > 0:
			ref = m.inst.RoundPriceToTick(m.lastPrice)
		}
		if ref > 0 {
			u, d := m.spacings()
			n := float64(m.cfg.Grid.OrderCount)
			m.bounds = types.GridBounds{
				Reference: ref,
				Lower:     math.Max(1, ref-n*d),
				Upper:     ref + n*u,
			}
			m.hasGrid = true
		}
	}

	m.logger.Info("reconcile: rebuilt local set from venue", "orders", len(open))
}

// dropDiverged removes local orders the venue no longer has open and adopts
// the venue's contract quantity where it diverges.
func (m *Manager) dropDiverged(remote map[string]types.RemoteOrder) {
	for localID, ord := range m.active {
		if ord.RemoteID == "" {
			// Never acknowledged; the submission did not reach the venue.
			delete(m.active, localID)
			m.logger.Warn("reconcile: dropping unacknowledged order",
				"local_id", localID,
				"price", ord.Price,
			)
			continue
		}
		ro, ok := remote[ord.RemoteID]
		if !ok {
			delete(m.active, localID)
			delete(m.byRemote, ord.RemoteID)
			m.logger.Warn("reconcile: dropping order missing remotely",
				"remote_id", ord.RemoteID,
				"price", ord.Price,
			)
			continue
		}
		if ro.OrderQty != ord.ContractQty {
			ord.ContractQty = ro.OrderQty
			ord.BaseQty = m.inst.ContractsToBase(ro.OrderQty, ro.Price)
		}
	}
}

// fillGaps inspects the resting ladder for holes wider than the tolerance
// and inserts interpolated orders, pacing submissions to respect rate
// limits. Fillers that would cross the market or land on an occupied price
// are skipped; one rejected filler never aborts the pass.
func (m *Manager) fillGaps(ctx context.Context) {
	if !m.hasGrid || m.paused() {
		return
	}

	u, d := m.spacings()
	meanSpacing := (u + d) / 2
	tol := m.cfg.Grid.GapDetectionTolerance
	if tol <= 0 || meanSpacing <= 0 {
		return
	}

	buys, sells := m.sortedLadder()

	type filler struct {
		price float64
		side  types.Side
	}
	var fillers []filler

	// Mid gap between the best buy and best sell.
	if len(buys) > 0 && len(sells) > 0 {
		gap := sells[0].Price - buys[0].Price
		if gap > tol*meanSpacing {
			n := int(gap/meanSpacing) - 1
			for i := 1; i <= n; i++ {
				p := buys[0].Price + gap*float64(i)/float64(n+1)
				side := types.Sell
				if p < m.bounds.Reference {
					side = types.Buy
				}
				fillers = append(fillers, filler{price: p, side: side})
			}
		}
	}

	// Side gaps between consecutive buys (descending ladder).
	for i := 0; i+1 < len(buys); i++ {
		gap := buys[i].Price - buys[i+1].Price
		if gap > tol*d {
			n := int(gap/d) - 1
			for j := 1; j <= n; j++ {
				fillers = append(fillers, filler{price: buys[i].Price - d*float64(j), side: types.Buy})
			}
		}
	}

	// Side gaps between consecutive sells (ascending ladder).
	for i := 0; i+1 < len(sells); i++ {
		gap := sells[i+1].Price - sells[i].Price
		if gap > tol*u {
			n := int(gap/u) - 1
			for j := 1; j <= n; j++ {
				fillers = append(fillers, filler{price: sells[i].Price + u*float64(j), side: types.Sell})
			}
		}
	}

	placed := 0
	for _, f := range fillers {
		p := m.inst.RoundPriceToTick(f.price)
		if p <= 0 {
			continue
		}
		if m.lastPrice > 0 {
			if f.side == types.Buy && p >= m.lastPrice {
				continue
			}
			if f.side == types.Sell && p <= m.lastPrice {
				continue
			}
		}
		if m.priceOccupied(p) {
			continue
		}

		entryRef := 0.0
		if f.side == types.Sell {
			entryRef = m.bounds.Reference
		}
		if _, err := m.createOrder(ctx, p, m.cfg.Grid.OrderSize, f.side, entryRef); err != nil {
			m.logger.Warn("gap filler rejected", "side", f.side, "price", p, "error", err)
			continue
		}
		placed++

		// Pace submissions to stay inside the venue's rate budget.
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}

	if placed > 0 {
		m.logger.Info("gap filling complete", "placed", placed)
	}
}

// priceOccupied reports whether any active order rests within half a tick of
// the price.
func (m *Manager) priceOccupied(p float64) bool {
	for _, o := range m.active {
		if m.inst.SamePrice(o.Price, p) {
			return true
		}
	}
	return false
}

// sortedLadder returns the active buys sorted descending and sells sorted
// ascending by price.
func (m *Manager) sortedLadder() (buys, sells []types.Order) {
	for _, o := range m.active {
		if o.Side == types.Buy {
			buys = append(buys, *o)
		} else {
			sells = append(sells, *o)
		}
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].Price > buys[j].Price })
	sort.Slice(sells, func(i, j int) bool { return sells[i].Price < sells[j].Price })
	return buys, sells
}
