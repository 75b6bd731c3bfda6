// Package metrics provides Prometheus metrics for the event projector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds projector metrics. Skips are labelled by kind and error
// code; divergences count finalizations where the mirrored outcome
// disagreed with the ledger.
type Metrics struct {
	EventsApplied   *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	ApplyDuration   prometheus.Histogram
	Cursor          prometheus.Gauge
	Rebuilds        *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	Divergences     prometheus.Counter
	Checkpoints     *prometheus.CounterVec
	Entities        *prometheus.GaugeVec
}

// New creates and registers the projector metrics.
func New() *Metrics {
	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_projector_events_applied_total",
			Help: "Ledger events applied to the snapshot by kind",
		}, []string{"kind"}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_projector_events_skipped_total",
			Help: "Ledger events skipped by kind and error code",
		}, []string{"kind", "code"}),
		ApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credpass_projector_apply_duration_seconds",
			Help:    "Time taken to apply one ledger event",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		Cursor: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "credpass_projector_cursor",
			Help: "Highest ledger event sequence number applied",
		}),
		Rebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_projector_rebuilds_total",
			Help: "Snapshot rebuilds from the journal by reason",
		}, []string{"reason"}),
		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credpass_projector_rebuild_duration_seconds",
			Help:    "Time taken to rebuild the snapshot from the journal",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		Divergences: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credpass_consensus_divergences_total",
			Help: "Finalizations where the mirrored outcome differed from the ledger",
		}),
		Checkpoints: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credpass_projector_checkpoints_total",
			Help: "Snapshot checkpoint writes by result",
		}, []string{"result"}),
		Entities: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credpass_projector_entities",
			Help: "Number of entities in the snapshot by type",
		}, []string{"entity"}),
	}
}

func (m *Metrics) IncApplied(kind string) {
	m.EventsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSkipped(kind, code string) {
	m.EventsSkipped.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) ObserveApply(seconds float64) {
	m.ApplyDuration.Observe(seconds)
}

func (m *Metrics) SetCursor(cursor uint64) {
	m.Cursor.Set(float64(cursor))
}

func (m *Metrics) ObserveRebuild(reason string, seconds float64) {
	m.Rebuilds.WithLabelValues(reason).Inc()
	m.RebuildDuration.Observe(seconds)
}

func (m *Metrics) IncDivergence() {
	m.Divergences.Inc()
}

func (m *Metrics) IncCheckpoint(result string) {
	m.Checkpoints.WithLabelValues(result).Inc()
}

// SetEntities updates the snapshot size gauges.
func (m *Metrics) SetEntities(requests, credentials, epochs int) {
	m.Entities.WithLabelValues("requests").Set(float64(requests))
	m.Entities.WithLabelValues("credentials").Set(float64(credentials))
	m.Entities.WithLabelValues("epochs").Set(float64(epochs))
}
