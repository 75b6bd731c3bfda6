// Package metrics provides Prometheus metrics for the credential issuance bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds issuance bridge metrics.
type Metrics struct {
	Attempts      prometheus.Counter
	Submitted     prometheus.Counter
	Duplicates    *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Settled       prometheus.Counter
	Pending       prometheus.Gauge
	MintDuration  prometheus.Histogram
	ReconcileRuns prometheus.Counter
}

// New creates and registers the issuance metrics.
func New() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_issuance_attempts_total",
			Help: "Issuance attempts for approved requests",
		}),
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_issuance_mints_submitted_total",
			Help: "Mint transactions accepted by the ledger",
		}),
		Duplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_issuance_duplicates_total",
			Help: "Issuance attempts skipped because the request was already minted or claimed",
		}, []string{"reason"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_issuance_failures_total",
			Help: "Issuance failures by stage",
		}, []string{"stage"}),
		Settled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_issuance_settled_total",
			Help: "Intents settled by an observed mint event",
		}),
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "credpass_issuance_pending_intents",
			Help: "Claimed intents whose mint has not been observed yet",
		}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credpass_issuance_mint_duration_seconds",
			Help:    "Time taken by the mint call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ReconcileRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_issuance_reconcile_runs_total",
			Help: "Reconcile passes over the snapshot",
		}),
	}
}

func (m *Metrics) IncAttempt() {
	m.Attempts.Inc()
}

func (m *Metrics) IncSubmitted() {
	m.Submitted.Inc()
}

// IncDuplicate records a skipped issuance; reason is "minted" or "claimed".
func (m *Metrics) IncDuplicate(reason string) {
	m.Duplicates.WithLabelValues(reason).Inc()
}

// IncFailure records a failed stage: "metadata", "claim", "mint" or "store".
func (m *Metrics) IncFailure(stage string) {
	m.Failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncSettled() {
	m.Settled.Inc()
}

func (m *Metrics) SetPending(n int) {
	m.Pending.Set(float64(n))
}

func (m *Metrics) ObserveMint(seconds float64) {
	m.MintDuration.Observe(seconds)
}

func (m *Metrics) IncReconcile() {
	m.ReconcileRuns.Inc()
}
