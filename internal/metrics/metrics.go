// Package metrics exposes Prometheus instrumentation for the extraction
// pipeline on its own registry, served on a separate listener.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline instruments.
type Metrics struct {
	registry *prometheus.Registry

	Extractions     *prometheus.CounterVec
	EngineAttempts  *prometheus.CounterVec
	FallbackRuns    prometheus.Counter
	CacheHits       prometheus.Counter
	Duration        prometheus.Histogram
	EngineDurations *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocr_extractions_total",
			Help: "Extraction requests by outcome.",
		}, []string{"outcome"}),
		EngineAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocr_engine_attempts_total",
			Help: "Engine invocations by engine and result.",
		}, []string{"engine", "result"}),
		FallbackRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocr_fallback_runs_total",
			Help: "Extractions where more than one engine ran.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocr_cache_hits_total",
			Help: "Extractions served from the result cache.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocr_extraction_duration_seconds",
			Help:    "End to end extraction duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		EngineDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocr_engine_duration_seconds",
			Help:    "Per engine recognition duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"engine"}),
	}
	reg.MustRegister(m.Extractions, m.EngineAttempts, m.FallbackRuns, m.CacheHits, m.Duration, m.EngineDurations)
	return m
}

// ObserveAttempt records one engine invocation.
func (m *Metrics) ObserveAttempt(engine string, success bool, d time.Duration) {
	result := "error"
	if success {
		result = "ok"
	}
	m.EngineAttempts.WithLabelValues(engine, result).Inc()
	m.EngineDurations.WithLabelValues(engine).Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
