package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Issues        *prometheus.CounterVec
	Reaches       prometheus.Gauge
	Segments      prometheus.Gauge
}

// NewMetrics creates a registry with every pipeline metric registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.Runs = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivernet_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	m.StageDuration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rivernet_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"stage"},
	)

	m.Issues = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivernet_issues_total",
			Help: "Data-quality issues found by the pipeline",
		},
		[]string{"kind"},
	)

	m.Reaches = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "rivernet_reaches",
			Help: "Number of reaches in the last processed network",
		},
	)

	m.Segments = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "rivernet_segments",
			Help: "Number of segments in the last processed network",
		},
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
