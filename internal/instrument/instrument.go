// Package instrument provides tick/lot rounding and contract conversion for
// a single venue instrument. Every price and quantity that leaves the engine
// must pass through these helpers; submitting through any other path breaks
// the venue's quantization rules.
package instrument

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gridmex/pkg/types"
)

// Model wraps an Instrument with precomputed decimal quanta.
type Model struct {
	info types.Instrument
	tick decimal.Decimal
	lot  decimal.Decimal

	// tickDecimals is the number of fractional digits of the tick size,
	// used for price string serialization.
	tickDecimals int32
}

// New validates the instrument metadata and builds a rounding model.
// Fails when tick or lot size is non-positive.
func New(info types.Instrument) (*Model, error) {
	if info.TickSize <= 0 {
		return nil, fmt.Errorf("instrument %s: tick size %v is not positive", info.Symbol, info.TickSize)
	}
	if info.LotSize <= 0 {
		return nil, fmt.Errorf("instrument %s: lot size %v is not positive", info.Symbol, info.LotSize)
	}

	tick := decimal.NewFromFloat(info.TickSize)
	dec := -tick.Exponent()
	if dec < 0 {
		dec = 0
	}

	return &Model{
		info:         info,
		tick:         tick,
		lot:          decimal.NewFromFloat(info.LotSize),
		tickDecimals: dec,
	}, nil
}

// Info returns the underlying instrument metadata.
func (m *Model) Info() types.Instrument { return m.info }

// Symbol returns the instrument symbol.
func (m *Model) Symbol() string { return m.info.Symbol }

// TickSize returns the price quantum.
func (m *Model) TickSize() float64 { return m.info.TickSize }

// LotSize returns the quantity quantum.
func (m *Model) LotSize() float64 { return m.info.LotSize }

// IsInverse reports whether the contract is inverse (quoted notional,
// base-settled).
func (m *Model) IsInverse() bool { return m.info.IsInverse }

// MakerFee returns the maker fee rate.
func (m *Model) MakerFee() float64 { return m.info.MakerFee }

// RoundPriceToTick rounds a price to the nearest multiple of the tick size.
func (m *Model) RoundPriceToTick(p float64) float64 {
	d := decimal.NewFromFloat(p)
	rounded := d.Div(m.tick).Round(0).Mul(m.tick)
	f, _ := rounded.Float64()
	return f
}

// PriceString serializes a price at the tick size's decimal precision.
func (m *Model) PriceString(p float64) string {
	return decimal.NewFromFloat(m.RoundPriceToTick(p)).StringFixed(m.tickDecimals)
}

// RoundQtyToLot floors a quantity to a multiple of the lot size. A strictly
// positive input never rounds to zero: the lot size itself is substituted as
// the minimum.
func (m *Model) RoundQtyToLot(q float64) float64 {
	if q <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(q)
	floored := d.Div(m.lot).Floor().Mul(m.lot)
	f, _ := floored.Float64()
	if f <= 0 {
		return m.info.LotSize
	}
	return f
}

// BaseToContracts converts a base-currency quantity to a contract quantity.
// For inverse contracts the venue quotes contracts in quote units, so the
// base amount is multiplied by price and rounded to the lot multiple. Linear
// contracts trade in base units directly.
func (m *Model) BaseToContracts(base, price float64) float64 {
	if !m.info.IsInverse {
		return base
	}
	contracts := base * price
	d := decimal.NewFromFloat(contracts)
	rounded := d.Div(m.lot).Round(0).Mul(m.lot)
	f, _ := rounded.Float64()
	return f
}

// ContractsToBase inverts BaseToContracts at the given price, used when
// rebuilding local orders from the venue's contract quantities.
func (m *Model) ContractsToBase(contracts, price float64) float64 {
	if !m.info.IsInverse {
		return contracts
	}
	if price == 0 {
		return 0
	}
	return contracts / price
}

// HalfTick is the tolerance used for internal price comparisons.
func (m *Model) HalfTick() float64 { return m.info.TickSize / 2 }

// SamePrice reports whether two prices coincide within half a tick.
func (m *Model) SamePrice(a, b float64) bool {
	return math.Abs(a-b) < m.HalfTick()
}
