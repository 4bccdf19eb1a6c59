package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	nativecommon "rfqdesk/native/common"
)

const namespace = "rfq"

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// HTTP returns the lazily-initialised registry recording API handler activity.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the client rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// SettlementMetrics tracks request lifecycle outcomes and limiter headroom.
// It satisfies settlement.Observer.
type SettlementMetrics struct {
	created      *prometheus.CounterVec
	removed      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	baseVolume   *prometheus.CounterVec
	counterFlow  *prometheus.CounterVec
	limitCap     prometheus.Gauge
	limitUsed    prometheus.Gauge
	limitReserve prometheus.Gauge
}

// Settlement returns the singleton settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			created: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "requests_created_total",
				Help:      "Count of trade requests recorded segmented by side.",
			}, []string{"side"}),
			removed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "requests_removed_total",
				Help:      "Count of requests leaving the registry segmented by reason.",
			}, []string{"reason"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "rejections_total",
				Help:      "Count of rejected engine operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			baseVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "base_volume_total",
				Help:      "Settled base-asset volume in smallest units segmented by side.",
			}, []string{"side"}),
			counterFlow: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "counter_volume_total",
				Help:      "Settled counter-asset volume in smallest units segmented by side.",
			}, []string{"side"}),
			limitCap: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "limiter",
				Name:      "cap",
				Help:      "Current volume cap of the settlement limiter.",
			}),
			limitUsed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "limiter",
				Name:      "used",
				Help:      "Volume consumed in the current limiter window.",
			}),
			limitReserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "limiter",
				Name:      "remaining",
				Help:      "Volume still admissible in the current limiter window.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.created,
			settlementRegistry.removed,
			settlementRegistry.rejected,
			settlementRegistry.baseVolume,
			settlementRegistry.counterFlow,
			settlementRegistry.limitCap,
			settlementRegistry.limitUsed,
			settlementRegistry.limitReserve,
		)
	})
	return settlementRegistry
}

func label(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// RequestCreated counts a new pending request.
func (m *SettlementMetrics) RequestCreated(side string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(label(side, "unknown")).Inc()
}

// RequestRemoved counts a request leaving the registry.
func (m *SettlementMetrics) RequestRemoved(reason string) {
	if m == nil {
		return
	}
	m.removed.WithLabelValues(label(reason, "unknown")).Inc()
}

// RequestAccepted adds the settled legs to the volume counters.
func (m *SettlementMetrics) RequestAccepted(side string, base, counter *big.Int) {
	if m == nil {
		return
	}
	side = label(side, "unknown")
	m.baseVolume.WithLabelValues(side).Add(magnitude(base))
	m.counterFlow.WithLabelValues(side).Add(magnitude(counter))
}

// OperationRejected counts a refused engine operation.
func (m *SettlementMetrics) OperationRejected(op, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(label(op, "unknown"), label(reason, "unknown")).Inc()
}

// LimiterUpdated publishes the limiter gauges.
func (m *SettlementMetrics) LimiterUpdated(state nativecommon.WindowState) {
	if m == nil {
		return
	}
	m.limitCap.Set(uintFloat(state.Limit))
	m.limitUsed.Set(uintFloat(state.Used))
	m.limitReserve.Set(uintFloat(state.Remaining()))
}

func magnitude(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(new(big.Int).Abs(v)).Float64()
	return f
}

func uintFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	return magnitude(v.ToBig())
}
