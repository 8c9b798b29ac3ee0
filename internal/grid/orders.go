package grid

import (
	"context"
	"fmt"
	"math"
	"time"

	"gridmex/internal/metrics"
	"gridmex/pkg/types"
)

// InitializeGrid builds a fresh two-sided grid around the mid price: cancel
// everything resting, place OrderCount buys below and sells above the
// tick-rounded reference, record the bounds, persist. Construction is
// guarded against recursive invocation and throttled so two consecutive
// constructions are separated by at least the configured interval.
func (m *Manager) InitializeGrid(ctx context.Context, mid float64) {
	if m.initializing {
		m.logger.Debug("grid initialization already in progress")
		return
	}
	if time.Since(m.lastInit) < m.cfg.Grid.InitThrottle {
		return
	}
	if m.paused() {
		m.logger.Debug("grid initialization skipped, breakout cooldown active")
		return
	}
	m.initializing = true
	defer func() { m.initializing = false }()
	m.lastInit = time.Now()

	r := m.inst.RoundPriceToTick(mid)
	if r <= 0 {
		m.logger.Error("cannot initialize grid at non-positive reference", "mid", mid)
		return
	}

	if _, err := m.gw.CancelAllOrders(ctx, m.inst.Symbol()); err != nil {
		m.logger.Error("cancel all before grid build failed", "error", err)
		return
	}
	m.active = make(map[int64]*types.Order)
	m.byRemote = make(map[string]int64)

	u, d := m.spacings()
	n := m.cfg.Grid.OrderCount
	size := m.cfg.Grid.OrderSize

	for i := 1; i <= n; i++ {
		buyPrice := r - float64(i)*d
		if buyPrice > 0 {
			if _, err := m.createOrder(ctx, buyPrice, size, types.Buy, 0); err != nil {
				m.logger.Warn("grid buy rejected", "price", buyPrice, "error", err)
			}
		}
		sellPrice := r + float64(i)*u
		if _, err := m.createOrder(ctx, sellPrice, size, types.Sell, r); err != nil {
			m.logger.Warn("grid sell rejected", "price", sellPrice, "error", err)
		}
	}

	m.bounds = types.GridBounds{
		Reference: r,
		Lower:     math.Max(1, r-float64(n)*d),
		Upper:     r + float64(n)*u,
	}
	m.hasGrid = true
	m.persist()

	m.logger.Info("grid initialized",
		"reference", r,
		"lower", m.bounds.Lower,
		"upper", m.bounds.Upper,
		"up_spacing", u,
		"down_spacing", d,
		"orders", len(m.active),
	)

	if m.dryRun {
		m.simulateCrossedFills(ctx, mid)
	}
}

// createOrder validates, sizes, and submits one limit order, recording it in
// the active set once the venue acknowledges.
func (m *Manager) createOrder(ctx context.Context, price, baseSize float64, side types.Side, entryRef float64) (*types.Order, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	price = m.inst.RoundPriceToTick(price)
	if price <= 0 {
		return nil, fmt.Errorf("%w: rounds to %v", ErrInvalidPrice, price)
	}

	if m.cfg.Grid.VariableOrderSize && m.bounds.Reference > 0 {
		baseSize *= m.sizeMultiplier(price)
	}
	baseSize = m.inst.RoundQtyToLot(baseSize)

	for _, o := range m.active {
		if !o.Filled && o.Side == side && m.inst.SamePrice(o.Price, price) {
			return nil, fmt.Errorf("%w: %s at %v", ErrDuplicatePricePoint, side, price)
		}
	}
	if len(m.active) >= m.cfg.Grid.MaxOpenOrders {
		return nil, fmt.Errorf("%w: %d active", ErrOrderLimitExceeded, len(m.active))
	}
	if err := m.checkPositionLimit(ctx, side, baseSize, price); err != nil {
		return nil, err
	}

	contracts := m.inst.BaseToContracts(baseSize, price)

	ord := &types.Order{
		LocalID:             m.nextLocalID,
		Side:                side,
		Price:               price,
		BaseQty:             baseSize,
		ContractQty:         contracts,
		Fee:                 price * baseSize * m.feeRate(),
		EntryReferencePrice: entryRef,
		CreatedAt:           time.Now().UTC(),
	}
	m.nextLocalID++

	ack, err := m.gw.PlaceLimitOrder(ctx, m.inst.Symbol(), side, price, contracts)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	ord.RemoteID = ack.OrderID

	m.active[ord.LocalID] = ord
	if ord.RemoteID != "" {
		m.byRemote[ord.RemoteID] = ord.LocalID
	}
	metrics.OrdersSubmitted.WithLabelValues(string(side)).Inc()
	m.persist()

	m.logger.Debug("order placed",
		"side", side,
		"price", m.inst.PriceString(price),
		"base_qty", baseSize,
		"contracts", contracts,
		"remote_id", ord.RemoteID,
	)
	return ord, nil
}

// sizeMultiplier scales order size by the price's deviation from the
// reference: buys grow as price falls below the reference, sells shrink as
// price rises above it. The ramp is linear over a 30% band and clamped to
// the configured multiplier range.
func (m *Manager) sizeMultiplier(price float64) float64 {
	const band = 0.30

	dev := (price - m.bounds.Reference) / m.bounds.Reference
	n := math.Max(-1, math.Min(1, dev/band))

	var mult float64
	if n < 0 {
		mult = 1 + (-n)*(m.cfg.Grid.MaxOrderSizeMultiplier-1)
	} else {
		mult = 1 - n*(1-m.cfg.Grid.MinOrderSizeMultiplier)
	}
	return math.Max(m.cfg.Grid.MinOrderSizeMultiplier,
		math.Min(m.cfg.Grid.MaxOrderSizeMultiplier, mult))
}

// checkPositionLimit refuses an order on the additive side of the current
// net position when the resulting base exposure would exceed the cap.
// Reducing orders always pass. A failed position query refuses the order.
func (m *Manager) checkPositionLimit(ctx context.Context, side types.Side, baseSize, price float64) error {
	pos, err := m.gw.GetPosition(ctx, m.inst.Symbol())
	if err != nil {
		return fmt.Errorf("%w: position query failed: %v", ErrPositionLimitExceeded, err)
	}

	var qty float64
	if pos != nil {
		qty = pos.CurrentQty
	}

	additive := qty == 0 ||
		(qty > 0 && side == types.Buy) ||
		(qty < 0 && side == types.Sell)
	if !additive {
		return nil
	}

	refPrice := m.lastPrice
	if refPrice <= 0 {
		refPrice = price
	}
	currentBase := math.Abs(qty)
	if m.inst.IsInverse() {
		currentBase = math.Abs(qty) / refPrice
	}

	if currentBase+baseSize > m.cfg.Grid.MaxPositionSizeBase {
		return fmt.Errorf("%w: %.8f + %.8f > %.8f",
			ErrPositionLimitExceeded, currentBase, baseSize, m.cfg.Grid.MaxPositionSizeBase)
	}
	return nil
}

func (m *Manager) feeRate() float64 {
	if m.cfg.Grid.FeeRate != 0 {
		return m.cfg.Grid.FeeRate
	}
	return m.inst.MakerFee()
}

// simulateCrossedFills synthesizes instantaneous fills in dry-run for any
// fresh order the market has already crossed.
func (m *Manager) simulateCrossedFills(ctx context.Context, mark float64) {
	crossed := make([]*types.Order, 0)
	for _, o := range m.active {
		if (o.Side == types.Buy && o.Price >= mark) ||
			(o.Side == types.Sell && o.Price <= mark) {
			crossed = append(crossed, o)
		}
	}
	for _, o := range crossed {
		m.logger.Info("DRY-RUN: simulating crossed fill", "side", o.Side, "price", o.Price)
		m.HandleFill(ctx, o.RemoteID, o.Price)
	}
}
