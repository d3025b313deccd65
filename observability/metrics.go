package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// API returns the lazily-initialised metrics registry tracking HTTP API
// activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftmarket",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
// Reasons should be stable strings such as "rate_limit" or "quota_exceeded"
// so dashboards and alerts remain consistent.
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// MarketMetrics tracks trading activity emitted by the engine.
type MarketMetrics struct {
	operations *prometheus.CounterVec
	sales      *prometheus.CounterVec
	volume     *prometheus.CounterVec
	escrow     prometheus.Gauge
}

// Market returns the metrics registry tracking engine operations and settled
// sales.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			sales: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "engine",
				Name:      "sales_total",
				Help:      "Settled sales segmented by sale type.",
			}, []string{"sale_type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "engine",
				Name:      "volume_native_total",
				Help:      "Settled sale volume in smallest native units, segmented by sale type.",
			}, []string{"sale_type"}),
			escrow: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftmarket",
				Subsystem: "engine",
				Name:      "escrow_locked_native",
				Help:      "Native value currently locked in the offer escrow vault.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.sales,
			marketRegistry.volume,
			marketRegistry.escrow,
		)
	})
	return marketRegistry
}

// RecordOperation increments the operation counter.
func (m *MarketMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordSale increments the sale counters. Volume above float precision is
// clamped rather than dropped so dashboards keep moving.
func (m *MarketMetrics) RecordSale(saleType string, price *big.Int) {
	if m == nil {
		return
	}
	saleType = strings.TrimSpace(saleType)
	if saleType == "" {
		saleType = "unknown"
	}
	m.sales.WithLabelValues(saleType).Inc()
	if price != nil && price.Sign() > 0 {
		value, _ := new(big.Float).SetInt(price).Float64()
		m.volume.WithLabelValues(saleType).Add(value)
	}
}

// SetEscrowLocked reports the current vault balance.
func (m *MarketMetrics) SetEscrowLocked(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.escrow.Set(value)
}
