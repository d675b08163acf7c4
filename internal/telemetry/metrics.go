// Package telemetry exposes the engine's running state as Prometheus
// metrics and a minimal read-only HTTP surface, alongside the progress
// indicators used for interactive CLI runs.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's Prometheus collectors. The engine updates
// BarsProcessed, TradesOpened, TradesClosed, OpenPositions and Equity;
// PredictionLatency, BreakerOpen, CacheHits and CacheMisses are registered
// but nothing in this repository updates them. A zero-value Metrics is not
// usable; build one with NewMetrics.
type Metrics struct {
	registry *prometheus.Registry

	BarsProcessed   *prometheus.CounterVec
	TradesOpened    *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	OpenPositions   prometheus.Gauge
	Equity          prometheus.Gauge
	PredictionLatency prometheus.Histogram
	BreakerOpen     *prometheus.GaugeVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector against a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		BarsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorun",
			Name:      "bars_processed_total",
			Help:      "Total number of bars consumed per symbol.",
		}, []string{"symbol"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorun",
			Name:      "trades_opened_total",
			Help:      "Total number of positions opened per symbol.",
		}, []string{"symbol", "side"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorun",
			Name:      "trades_closed_total",
			Help:      "Total number of positions closed per symbol and exit reason.",
		}, []string{"symbol", "reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorun",
			Name:      "open_positions",
			Help:      "Current number of open rotation positions.",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorun",
			Name:      "equity_dollars",
			Help:      "Initial capital plus realized P&L net of costs; open positions are not marked to market.",
		}),
		PredictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rotorun",
			Name:      "prediction_latency_seconds",
			Help:      "Time spent producing one symbol's prediction for a bar.",
			Buckets:   prometheus.DefBuckets,
		}),
		BreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rotorun",
			Name:      "loader_breaker_open",
			Help:      "1 if a symbol's data-feed circuit breaker is open, else 0.",
		}, []string{"symbol"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorun",
			Name:      "loader_cache_hits_total",
			Help:      "Bar cache hits per symbol.",
		}, []string{"symbol"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorun",
			Name:      "loader_cache_misses_total",
			Help:      "Bar cache misses per symbol.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		m.BarsProcessed, m.TradesOpened, m.TradesClosed,
		m.OpenPositions, m.Equity, m.PredictionLatency,
		m.BreakerOpen, m.CacheHits, m.CacheMisses,
	)
	return m
}

// Registry exposes the underlying Prometheus registry, for wiring into an
// HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
