package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay results for outbox rows.
const (
	RelayPublished    = "published"
	RelayRetry        = "retry"
	RelayDeadLettered = "dead_lettered"
	RelayDeferred     = "deferred"
)

// RelayMetrics tracks the outbox relay.
type RelayMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

// NewRelayMetrics registers the relay metrics. A nil registerer yields a no-op recorder.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_events_total",
		Help: "Outbox rows handled by the relay, by event type and result.",
	}, []string{"event_type", "result"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_relay_batch_duration_seconds",
		Help:    "Time spent relaying one outbox batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, batch)
	return &RelayMetrics{events: events, batch: batch}
}

func (m *RelayMetrics) ObserveEvent(eventType, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (m *RelayMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}
