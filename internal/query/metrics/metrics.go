package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds query façade metrics.
type Metrics struct {
	Reads            *prometheus.CounterVec
	StaleReads       prometheus.Counter
	MetadataFailures prometheus.Counter
	CursorLag        prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Reads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_query_reads_total",
			Help: "Snapshot reads by operation",
		}, []string{"operation"}),
		StaleReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_query_stale_reads_total",
			Help: "Reads rejected because the snapshot was behind min_cursor",
		}),
		MetadataFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_query_metadata_failures_total",
			Help: "Credential metadata resolutions that returned unavailable",
		}),
		CursorLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credpass_query_cursor_lag_events",
			Help:    "How far the snapshot trailed min_cursor on stale reads",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) IncRead(operation string) {
	m.Reads.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncStale(lag uint64) {
	m.StaleReads.Inc()
	m.CursorLag.Observe(float64(lag))
}

func (m *Metrics) IncMetadataFailure() {
	m.MetadataFailures.Inc()
}
