package apiserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/varenko/inquest/internal/diagnosis"
)

// Metrics holds Prometheus metrics for the diagnosis API.
type Metrics struct {
	DiagnosesTotal    *prometheus.CounterVec // diagnoses served, by primary pattern
	UnclassifiedTotal prometheus.Counter     // diagnoses where no pattern reached threshold
	Duration          prometheus.Histogram   // wall-clock seconds per diagnosis
	CacheHitRate      prometheus.Gauge       // diagnosis cache hit ratio
}

// NewMetrics creates the API metrics and registers them with the provided
// registerer. The registerer parameter allows flexible registration
// (e.g., global registry, test registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	diagnosesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inquest_diagnoses_total",
		Help: "Total diagnoses served, labeled by primary pattern",
	}, []string{"pattern"})

	unclassifiedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inquest_diagnoses_unclassified_total",
		Help: "Total diagnoses where no signature reached its threshold",
	})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inquest_diagnosis_duration_seconds",
		Help:    "Wall-clock time spent producing one diagnosis",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inquest_diagnosis_cache_hit_ratio",
		Help: "Hit ratio of the diagnosis cache, 0.0-1.0",
	})

	reg.MustRegister(diagnosesTotal)
	reg.MustRegister(unclassifiedTotal)
	reg.MustRegister(duration)
	reg.MustRegister(cacheHitRate)

	return &Metrics{
		DiagnosesTotal:    diagnosesTotal,
		UnclassifiedTotal: unclassifiedTotal,
		Duration:          duration,
		CacheHitRate:      cacheHitRate,
	}
}

// Observe records the outcome of one diagnosis call.
func (m *Metrics) Observe(d *diagnosis.Diagnosis, seconds float64) {
	m.Duration.Observe(seconds)

	if d.Unclassified {
		m.UnclassifiedTotal.Inc()
		m.DiagnosesTotal.WithLabelValues("unclassified").Inc()
		return
	}
	m.DiagnosesTotal.WithLabelValues(string(d.Primary().Pattern)).Inc()
}
