// Package metrics counts what a corpus run did and exports the counters
// in the Prometheus text format, for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stephanus"

// Metrics holds the counters of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	documents   *prometheus.CounterVec
	citations   *prometheus.CounterVec
	amendments  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
}

// New registers the run counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		// Labels: pass, status (written, unchanged, failed, skipped)
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed by pass and outcome",
		}, []string{"pass", "status"}),
		// Labels: kind (wrapped, rejected, aborted, idem)
		citations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_total",
			Help:      "Citation findings by kind",
		}, []string{"kind"}),
		amendments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amendments_total",
			Help:      "Citation element amendments by kind",
		}, []string{"kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Time spent on one document",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"pass"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Completion time of the last run without failed documents",
		}),
	}
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Document records the outcome of one document.
func (m *Metrics) Document(pass, status string, d time.Duration) {
	m.documents.WithLabelValues(pass, status).Inc()
	m.duration.WithLabelValues(pass).Observe(d.Seconds())
}

// Citations adds n findings of kind.
func (m *Metrics) Citations(kind string, n int) {
	if n > 0 {
		m.citations.WithLabelValues(kind).Add(float64(n))
	}
}

// Amendments adds n amendments of kind.
func (m *Metrics) Amendments(kind string, n int) {
	if n > 0 {
		m.amendments.WithLabelValues(kind).Add(float64(n))
	}
}

// Succeeded stamps the completion time of a clean run.
func (m *Metrics) Succeeded(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// WriteFile writes the counters to path atomically.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
