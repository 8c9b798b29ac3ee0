// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine: instruments, orders,
// trades, candles, and the streaming event payloads delivered by the venue.
// It has no dependencies on internal packages, so it can be imported by any
// layer.
package types

import "time"

// Side represents the direction of an order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TrendDirection classifies the prevailing price trend.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// Instrument is the immutable venue metadata for one symbol. Every outbound
// price must be a multiple of TickSize and every outbound quantity a multiple
// of LotSize.
type Instrument struct {
	Symbol        string  `json:"symbol"`
	LotSize       float64 `json:"lotSize"`
	TickSize      float64 `json:"tickSize"`
	BaseCurrency  string  `json:"underlying"`
	QuoteCurrency string  `json:"quoteCurrency"`
	MakerFee      float64 `json:"makerFee"`
	Multiplier    float64 `json:"multiplier"`
	IsInverse     bool    `json:"isInverse"`
}

// Order is a grid order owned by the order manager until it reaches a
// terminal state. LocalID is assigned at construction and never reused;
// RemoteID is empty until the venue acknowledges the submission.
type Order struct {
	LocalID     int64   `json:"localId"`
	RemoteID    string  `json:"remoteId,omitempty"`
	Side        Side    `json:"side"`
	Price       float64 `json:"price"`
	BaseQty     float64 `json:"baseQty"`
	ContractQty float64 `json:"contractQty"`
	Fee         float64 `json:"fee"`
	Filled      bool    `json:"filled"`

	// EntryReferencePrice links the exit half of a cycle back to the price
	// the position was entered at. Zero means the order opens a new cycle.
	EntryReferencePrice float64 `json:"entryReferencePrice,omitempty"`

	// OppositeOrderPrice is a legacy persistence field. It is read from old
	// state files but never written by this engine.
	OppositeOrderPrice *float64 `json:"oppositeOrderPrice,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// RemoteOrder is the venue's view of an order, returned by REST queries and
// carried in order-channel stream updates.
type RemoteOrder struct {
	OrderID   string    `json:"orderID"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	OrderQty  float64   `json:"orderQty"`
	OrdStatus string    `json:"ordStatus"`
	OrdType   string    `json:"ordType"`
	ExecInst  string    `json:"execInst"`
	AvgPx     float64   `json:"avgPx"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the venue's net position for one symbol. CurrentQty is in
// contracts, signed (positive = long).
type Position struct {
	Symbol        string  `json:"symbol"`
	CurrentQty    float64 `json:"currentQty"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
}

// Trade is a public trade print.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// Candle is one OHLCV bucket built from trade prints.
type Candle struct {
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CompletedTrade records one closed grid cycle: the entry and exit order
// snapshots plus the net result after both fees. Append-only.
type CompletedTrade struct {
	Entry    Order     `json:"entry"`
	Exit     Order     `json:"exit"`
	Profit   float64   `json:"profit"`
	Fees     float64   `json:"fees"`
	ClosedAt time.Time `json:"closedAt"`
}

// SessionStats accumulates results for the current trading session.
// Updated transactionally with each CompletedTrade.
type SessionStats struct {
	CumulativePnL    float64   `json:"cumulativePnL"`
	TotalTrades      int       `json:"totalTrades"`
	WinningTrades    int       `json:"winningTrades"`
	LosingTrades     int       `json:"losingTrades"`
	CumulativeFees   float64   `json:"cumulativeFees"`
	CumulativeVolume float64   `json:"cumulativeVolume"`
	SessionStart     time.Time `json:"sessionStartTime"`
}

// GridSizingConfig is the current grid geometry derived from volatility and
// trend. When the trend is directional, UpwardGridSpacing and
// DownwardGridSpacing diverge from CurrentDistance so that
// upward * downward stays close to the square of the base distance.
type GridSizingConfig struct {
	CurrentDistance     float64        `json:"currentDistance"`
	LastATRValue        float64        `json:"lastATRValue"`
	LastRecalculation   time.Time      `json:"lastRecalculation"`
	TrendDirection      TrendDirection `json:"trendDirection"`
	TrendStrength       float64        `json:"trendStrength"`
	AsymmetryFactor     float64        `json:"asymmetryFactor"`
	UpwardGridSpacing   float64        `json:"upwardGridSpacing"`
	DownwardGridSpacing float64        `json:"downwardGridSpacing"`
}

// GridBounds is the active price envelope of the grid.
type GridBounds struct {
	Reference float64 `json:"reference"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// ————————————————————————————————————————————————————————————————————————
// Streaming events
// ————————————————————————————————————————————————————————————————————————
// The transport parses raw stream frames exactly once into these tagged
// variants; nothing downstream touches untyped payloads.

// TradeEvent is a public trade print from the trade channel.
type TradeEvent struct {
	Symbol    string
	Price     float64
	Size      float64
	Side      string
	Timestamp time.Time
}

// ExecutionEvent is a private execution report. ExecType "Trade" means one
// of our orders (partially) filled.
type ExecutionEvent struct {
	ExecID    string
	OrderID   string
	Symbol    string
	Side      string
	ExecType  string
	LastQty   float64
	LastPx    float64
	OrdStatus string
	Timestamp time.Time
}

// OrderUpdateEvent is a private order lifecycle update from the order
// channel. Only OrderID and OrdStatus are guaranteed; price fields are
// present on full rows and may be zero on deltas.
type OrderUpdateEvent struct {
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	OrderQty  float64
	AvgPx     float64
	OrdStatus string
	Timestamp time.Time
}
