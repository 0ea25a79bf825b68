// Package metrics provides Prometheus metrics export for the memory engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports memory engine metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Extraction metrics
	extractionOutcomes *prometheus.CounterVec
	extractionLatency  prometheus.Histogram
	extractionFailures prometheus.Counter

	// Retrieval metrics
	retrievalLatency prometheus.Histogram
	retrievalResults prometheus.Histogram

	// Provider metrics
	providerErrors *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus exporter.
func NewExporter(cfg Config) *Exporter {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = DefaultConfig().LatencyBuckets
	}

	e := &Exporter{
		registry: registry,
		extractionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dolphin_memory_extraction_outcomes_total",
			Help: "Conflict resolution outcomes of extracted facts.",
		}, []string{"outcome"}),
		extractionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dolphin_memory_extraction_duration_seconds",
			Help:    "Wall-clock duration of background fact extraction.",
			Buckets: buckets,
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dolphin_memory_extraction_failures_total",
			Help: "Recoverable extraction failures (parse errors, model refusals).",
		}),
		retrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dolphin_memory_retrieval_duration_seconds",
			Help:    "Wall-clock duration of memory retrieval.",
			Buckets: buckets,
		}),
		retrievalResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dolphin_memory_retrieval_results",
			Help:    "Number of facts returned per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dolphin_provider_errors_total",
			Help: "Provider-boundary errors by class (transient/permanent).",
		}, []string{"provider", "class"}),
	}

	registry.MustRegister(
		e.extractionOutcomes,
		e.extractionLatency,
		e.extractionFailures,
		e.retrievalLatency,
		e.retrievalResults,
		e.providerErrors,
	)
	return e
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ObserveExtraction records one extraction run. Nil-safe.
func (e *Exporter) ObserveExtraction(seconds float64, outcomes map[string]int, failed bool) {
	if e == nil {
		return
	}
	e.extractionLatency.Observe(seconds)
	for outcome, count := range outcomes {
		e.extractionOutcomes.WithLabelValues(outcome).Add(float64(count))
	}
	if failed {
		e.extractionFailures.Inc()
	}
}

// ObserveRetrieval records one retrieval run. Nil-safe.
func (e *Exporter) ObserveRetrieval(seconds float64, results int) {
	if e == nil {
		return
	}
	e.retrievalLatency.Observe(seconds)
	e.retrievalResults.Observe(float64(results))
}

// IncProviderError counts a classified provider error. Nil-safe.
func (e *Exporter) IncProviderError(provider, class string) {
	if e == nil {
		return
	}
	e.providerErrors.WithLabelValues(provider, class).Inc()
}
