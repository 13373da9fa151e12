package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// TransitionMetrics records draft status transitions and best-effort side effects.
type TransitionMetrics struct {
	transitions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	pushFailures prometheus.Counter
	auditWarns   prometheus.Counter
}

// NewTransitionMetrics registers the tokenization metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenization_transitions_total",
		Help: "Draft status transitions by transition and outcome.",
	}, []string{"transition", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenization_transition_duration_seconds",
		Help:    "Duration of draft status transitions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"transition"})
	pushFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_live_push_failures_total",
		Help: "Live notification pushes that failed after the record was stored.",
	})
	auditWarns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokenization_audit_append_failures_total",
		Help: "Audit appends that failed and were downgraded to warnings.",
	})
	reg.MustRegister(transitions, duration, pushFailures, auditWarns)
	return &TransitionMetrics{
		transitions:  transitions,
		duration:     duration,
		pushFailures: pushFailures,
		auditWarns:   auditWarns,
	}
}

// ObserveTransition counts one attempt and records its duration.
func (m *TransitionMetrics) ObserveTransition(transition, outcome string, d time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	transition = normalizeLabel(transition)
	m.transitions.WithLabelValues(transition, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(transition).Observe(d.Seconds())
}

// IncPushFailure counts a failed live push.
func (m *TransitionMetrics) IncPushFailure() {
	if m == nil || m.pushFailures == nil {
		return
	}
	m.pushFailures.Inc()
}

// IncAuditWarning counts an audit append downgraded to a warning.
func (m *TransitionMetrics) IncAuditWarning() {
	if m == nil || m.auditWarns == nil {
		return
	}
	m.auditWarns.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
