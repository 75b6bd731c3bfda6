package metadata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts content-addressed storage failures.
type Metrics struct {
	Failures *prometheus.CounterVec
}

// NewMetrics creates and registers storage metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_metadata_failures_total",
			Help: "Content-addressed storage failures by operation",
		}, []string{"op"}),
	}
}

// IncFailure increments the failure counter for op.
func (m *Metrics) IncFailure(op string) {
	m.Failures.WithLabelValues(op).Inc()
}
