package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records runs of the retention jobs.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

// NewMaintenanceMetrics registers the job metrics. A nil registerer yields a no-op recorder.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by result.",
	}, []string{"job", "result"})
	reg.MustRegister(duration, runs)
	return &MaintenanceMetrics{duration: duration, runs: runs}
}

// ObserveJob counts one run and records how long it took.
func (m *MaintenanceMetrics) ObserveJob(job string, err error, d time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeError
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}
