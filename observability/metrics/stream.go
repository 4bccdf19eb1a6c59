package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics covers the daemon's notification fan-out: the websocket hub,
// the archive writer and the reference price poller.
type StreamMetrics struct {
	subscribers     prometheus.Gauge
	delivered       prometheus.Counter
	dropped         *prometheus.CounterVec
	archiveWrites   *prometheus.CounterVec
	priceFeedPolls  *prometheus.CounterVec
	priceFeedUpdate prometheus.Gauge
}

var (
	streamOnce     sync.Once
	streamRegistry *StreamMetrics
)

func Stream() *StreamMetrics {
	streamOnce.Do(func() {
		streamRegistry = &StreamMetrics{
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rfq_stream_subscribers",
				Help: "Connected websocket subscribers.",
			}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rfq_stream_delivered_total",
				Help: "Notifications queued to websocket subscribers.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rfq_stream_dropped_total",
				Help: "Notifications dropped before delivery by reason.",
			}, []string{"reason"}),
			archiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rfq_archive_writes_total",
				Help: "Archive inserts by outcome.",
			}, []string{"outcome"}),
			priceFeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rfq_pricefeed_polls_total",
				Help: "Reference price polls by outcome.",
			}, []string{"outcome"}),
			priceFeedUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rfq_pricefeed_updated_timestamp_seconds",
				Help: "Unix time of the last accepted reference price.",
			}),
		}
		prometheus.MustRegister(
			streamRegistry.subscribers,
			streamRegistry.delivered,
			streamRegistry.dropped,
			streamRegistry.archiveWrites,
			streamRegistry.priceFeedPolls,
			streamRegistry.priceFeedUpdate,
		)
	})
	return streamRegistry
}

func (m *StreamMetrics) SubscriberJoined() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *StreamMetrics) SubscriberLeft() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *StreamMetrics) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *StreamMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *StreamMetrics) ArchiveWrite(err error) {
	if m == nil {
		return
	}
	m.archiveWrites.WithLabelValues(outcome(err)).Inc()
}

// PriceFeedPoll records a poll; updatedUnix is ignored on failure.
func (m *StreamMetrics) PriceFeedPoll(err error, updatedUnix int64) {
	if m == nil {
		return
	}
	m.priceFeedPolls.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.priceFeedUpdate.Set(float64(updatedUnix))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
