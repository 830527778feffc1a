// Package metrics exposes order and run counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec
	OrdersFailed    *prometheus.CounterVec
	OrderAttempts   *prometheus.CounterVec
	DuplicateOrders *prometheus.CounterVec
	OrderDuration   *prometheus.HistogramVec
	TradeVolume     *prometheus.CounterVec
	AvailableBudget *prometheus.GaugeVec
	RealizedProfit  *prometheus.GaugeVec
	Passes          *prometheus.CounterVec
	SymbolErrors    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the trader collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_placed_total",
			Help: "Orders filled by the gateway.",
		}, []string{"symbol", "side"}),
		OrdersFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_failed_total",
			Help: "Orders rejected after every attempt.",
		}, []string{"symbol", "side"}),
		OrderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_attempts_total",
			Help: "Gateway calls by outcome.",
		}, []string{"symbol", "side", "outcome"}),
		DuplicateOrders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_duplicate_total",
			Help: "Orders suppressed because a matching signal was pending.",
		}, []string{"symbol", "side"}),
		OrderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trader_order_duration_seconds",
			Help:    "Time from first attempt to final outcome.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"symbol", "side"}),
		TradeVolume: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trade_volume_total",
			Help: "Shares traded.",
		}, []string{"symbol", "side"}),
		AvailableBudget: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_available_budget",
			Help: "Cash available to the bot after the last fill.",
		}, []string{"bot"}),
		RealizedProfit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_realized_profit",
			Help: "Cumulative realized profit of the bot.",
		}, []string{"bot"}),
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_live_passes_total",
			Help: "Live polling passes by outcome.",
		}, []string{"outcome"}),
		SymbolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_symbol_errors_total",
			Help: "Per-symbol evaluation failures.",
		}, []string{"symbol"}),
		gatherer: reg,
	}
}

// NewDiscard returns metrics on a private registry nobody scrapes.
func NewDiscard() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveOrder(symbol, side string, start time.Time) {
	m.OrderDuration.WithLabelValues(symbol, side).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
