// Package metrics exposes export pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/giisexport/internal/core"
)

// Metrics implements core.Recorder.
type Metrics struct {
	ArtifactsGenerated *prometheus.CounterVec
	RowsAccepted       *prometheus.CounterVec
	RowsExcluded       *prometheus.CounterVec
	RowWarnings        *prometheus.CounterVec
	GenerationFailures *prometheus.CounterVec
	DeliverablesSealed *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

var _ core.Recorder = (*Metrics)(nil)

// New creates the pipeline metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ArtifactsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_artifacts_generated_total",
			Help: "Total number of guide text artifacts generated",
		}, []string{"guide"}),
		RowsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_rows_accepted_total",
			Help: "Total number of rows written to artifacts",
		}, []string{"guide"}),
		RowsExcluded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_rows_excluded_total",
			Help: "Total number of rows excluded by blocking validation issues",
		}, []string{"guide"}),
		RowWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_validation_warnings_total",
			Help: "Total number of non-blocking validation warnings",
		}, []string{"guide"}),
		GenerationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_generation_failures_total",
			Help: "Total number of guide generations that failed",
		}, []string{"guide"}),
		DeliverablesSealed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giis_deliverables_sealed_total",
			Help: "Total number of sealed archives produced",
		}, []string{"guide"}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "giis_generation_duration_seconds",
			Help:    "Duration of one guide generation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"guide"}),
		reg: reg,
	}
}

// ArtifactGenerated records one successful guide generation.
func (m *Metrics) ArtifactGenerated(guide string, accepted, excluded, warnings int, elapsed time.Duration) {
	m.ArtifactsGenerated.WithLabelValues(guide).Inc()
	m.RowsAccepted.WithLabelValues(guide).Add(float64(accepted))
	m.RowsExcluded.WithLabelValues(guide).Add(float64(excluded))
	m.RowWarnings.WithLabelValues(guide).Add(float64(warnings))
	m.GenerationDuration.WithLabelValues(guide).Observe(elapsed.Seconds())
}

// GenerationFailed records one failed guide generation.
func (m *Metrics) GenerationFailed(guide string) {
	m.GenerationFailures.WithLabelValues(guide).Inc()
}

// DeliverableSealed records one sealed archive.
func (m *Metrics) DeliverableSealed(guide string) {
	m.DeliverablesSealed.WithLabelValues(guide).Inc()
}

// ObserveLimiter exposes the generation limiter's occupancy as gauges, with
// one per-guide gauge for each code in guides.
func (m *Metrics) ObserveLimiter(l *core.GenerationLimiter, guides ...string) {
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "giis_generations_active",
		Help: "Guide generations currently holding a limiter slot",
	}, func() float64 { return float64(l.ActiveCount()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "giis_generations_available",
		Help: "Free generation limiter slots",
	}, func() float64 { return float64(l.Available()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "giis_generations_max",
		Help: "Maximum concurrent guide generations",
	}, func() float64 { return float64(l.MaxConcurrent()) })

	for _, guide := range guides {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "giis_guide_generations_active",
			Help:        "Generations of one guide currently holding a limiter slot",
			ConstLabels: prometheus.Labels{"guide": guide},
		}, func() float64 { return float64(l.ActiveFor(guide)) })
	}
}
