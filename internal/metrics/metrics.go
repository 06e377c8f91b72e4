// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine emits. Each Registry owns a
// dedicated Prometheus registry so tests and embedded uses never collide
// on the global default.
type Registry struct {
	reg *prometheus.Registry

	Predictions        *prometheus.CounterVec // by method
	PredictionDuration prometheus.Histogram
	EstimatorFailures  prometheus.Counter
	SignalFetches      *prometheus.CounterVec // by source, status
	PersistenceErrors  *prometheus.CounterVec // by operation
	CacheHits          *prometheus.CounterVec // by cache type
	CacheMisses        *prometheus.CounterVec
	TimingRequests     prometheus.Counter
	OutcomesRecorded   prometheus.Counter
	AccuracyObserved   prometheus.Histogram
}

// NewRegistry creates and registers the engine metric set.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_predictions_total",
			Help: "Predictions produced, labeled by method",
		},
		[]string{"method"},
	)

	r.PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engage_prediction_duration_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	r.EstimatorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_estimator_failures_total",
			Help: "AI estimate calls that degraded to the regression path",
		},
	)

	r.SignalFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_signal_fetches_total",
			Help: "External signal fetch outcomes, labeled by source and status",
		},
		[]string{"source", "status"},
	)

	r.PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_persistence_errors_total",
			Help: "Best-effort persistence writes that failed, by operation",
		},
		[]string{"operation"},
	)

	r.CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_cache_hits_total",
			Help: "Cache hits by cache type",
		},
		[]string{"cache_type"},
	)

	r.CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_cache_misses_total",
			Help: "Cache misses by cache type",
		},
		[]string{"cache_type"},
	)

	r.TimingRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_timing_requests_total",
			Help: "Timing recommendation requests served",
		},
	)

	r.OutcomesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_outcomes_recorded_total",
			Help: "Prediction outcomes recorded",
		},
	)

	r.AccuracyObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engage_accuracy_observed",
			Help:    "Distribution of observed prediction accuracy scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	r.reg.MustRegister(
		r.Predictions, r.PredictionDuration, r.EstimatorFailures,
		r.SignalFetches, r.PersistenceErrors, r.CacheHits, r.CacheMisses,
		r.TimingRequests, r.OutcomesRecorded, r.AccuracyObserved,
	)
	return r
}

// Handler serves this registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for observability tests.
func (r *Registry) Gather() prometheus.Gatherer {
	return r.reg
}
