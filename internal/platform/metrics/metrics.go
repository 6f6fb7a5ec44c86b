package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the credential issuance and verification metrics. A nil
// *Metrics records nothing.
type Metrics struct {
	CredentialsIssued prometheus.Counter
	IssueFailures     *prometheus.CounterVec
	IssueDuration     prometheus.Histogram
	Verifications     *prometheus.CounterVec
	VerifyDuration    prometheus.Histogram
	StoreLookups      *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers with reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "semear_credentials_issued_total",
			Help: "Total number of delivery receipts issued and stored",
		}),
		IssueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semear_credential_issue_failures_total",
			Help: "Issuance attempts that failed, by stage",
		}, []string{"stage"}),
		IssueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "semear_credential_issue_duration_seconds",
			Help:    "Latency of signing and storing a credential",
			Buckets: prometheus.DefBuckets,
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semear_credential_verifications_total",
			Help: "Credential verifications by outcome",
		}, []string{"result"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "semear_credential_verify_duration_seconds",
			Help:    "Latency of the full verification pipeline",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}),
		StoreLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semear_credential_store_lookups_total",
			Help: "Credential store lookups by operation and outcome",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) ObserveIssue(d time.Duration) {
	if m == nil {
		return
	}
	m.CredentialsIssued.Inc()
	m.IssueDuration.Observe(d.Seconds())
}

func (m *Metrics) IncIssueFailure(stage string) {
	if m == nil {
		return
	}
	m.IssueFailures.WithLabelValues(stage).Inc()
}

// ObserveVerify records one verification. result is a short reason tag such
// as "valid" or "not_mine".
func (m *Metrics) ObserveVerify(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
	m.VerifyDuration.Observe(d.Seconds())
}

func (m *Metrics) IncLookup(op, result string) {
	if m == nil {
		return
	}
	m.StoreLookups.WithLabelValues(op, result).Inc()
}
