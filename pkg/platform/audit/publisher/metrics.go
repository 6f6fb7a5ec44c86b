package publisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Appended       *prometheus.CounterVec
	AppendFailures *prometheus.CounterVec
	AppendDuration prometheus.Histogram
	Dropped        prometheus.Counter
}

// NewMetrics registers the audit publisher metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Appended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "semear_audit_events_appended_total",
			Help: "Total number of audit events persisted or forwarded",
		}, []string{"action"}),
		AppendFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "semear_audit_append_failures_total",
			Help: "Total number of audit events the store rejected",
		}, []string{"action"}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "semear_audit_append_duration_seconds",
			Help:    "Latency of audit store appends",
			Buckets: prometheus.DefBuckets,
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "semear_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the async buffer was full",
		}),
	}
}

func (m *Metrics) ObserveAppend(action string, d time.Duration, err error) {
	m.AppendDuration.Observe(d.Seconds())
	if err != nil {
		m.AppendFailures.WithLabelValues(action).Inc()
		return
	}
	m.Appended.WithLabelValues(action).Inc()
}

func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}
