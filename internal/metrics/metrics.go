// Package metrics exposes the engine's operational gauges and counters on
// the default prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmex_orders_submitted_total",
			Help: "Total number of orders submitted (by side).",
		},
		[]string{"side"},
	)

	FillsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmex_fills_processed_total",
			Help: "Total number of fill events applied (after deduplication).",
		},
	)

	TradesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmex_trades_completed_total",
			Help: "Total number of completed grid cycles.",
		},
	)

	ActiveOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridmex_active_orders",
			Help: "Current number of resting grid orders.",
		},
	)

	CumulativePnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridmex_cumulative_pnl",
			Help: "Session profit and loss after fees, in quote units.",
		},
	)

	CumulativeFees = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridmex_cumulative_fees",
			Help: "Session fees paid, in quote units.",
		},
	)

	GridReference = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridmex_grid_reference_price",
			Help: "Current grid reference price.",
		},
	)

	GridShifts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmex_grid_shifts_total",
			Help: "Total number of grid shifts.",
		},
	)

	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmex_stream_reconnects_total",
			Help: "Total number of stream (re)connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		FillsProcessed,
		TradesCompleted,
		ActiveOrders,
		CumulativePnL,
		CumulativeFees,
		GridReference,
		GridShifts,
		StreamReconnects,
	)
}
