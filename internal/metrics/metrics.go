// Package metrics provides Prometheus metrics collection for the gemscope
// analytics service. It defines and manages all API, optimizer, training,
// and system metrics exposed via the Prometheus metrics endpoint.
//
// The package includes metrics for HTTP requests, optimization runs, surface
// evaluations, model training, cache behavior, registry mirroring, and jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the analytics service.
// It provides counters, gauges, and histograms for comprehensive monitoring
// of dataset ingestion, model lifecycle, and search workloads.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec   // Total HTTP requests by route and status
	RequestDuration *prometheus.HistogramVec // HTTP request duration by route

	// Optimizer metrics
	OptimizeRuns         prometheus.Counter   // Total optimization runs
	OptimizeDuration     prometheus.Histogram // Optimization run duration in seconds
	OptimizeSamples      prometheus.Histogram // Samples drawn per optimization run
	OptimizeEmptyResults prometheus.Counter   // Runs that ended with no qualifying candidate

	// Surface metrics
	SurfaceEvals    prometheus.Counter   // Total surface evaluations
	SurfaceDuration prometheus.Histogram // Surface evaluation duration in seconds
	SurfaceCells    prometheus.Histogram // Grid cells evaluated per surface call

	// Model metrics
	TrainRuns       *prometheus.CounterVec // Training runs by family
	TrainDuration   prometheus.Histogram   // Training duration in seconds
	TrainFailures   prometheus.Counter     // Training failures
	AdapterCalls    prometheus.Counter     // Total adapter predict/predictProba calls
	AdapterFailures prometheus.Counter     // Adapter call failures
	CacheHits       prometheus.Counter     // Model cache hits
	CacheMisses     prometheus.Counter     // Model cache misses
	CacheEvictions  prometheus.Counter     // Model cache evictions
	CacheEntries    prometheus.Gauge       // Current model cache entries

	// Dataset and prediction metrics
	UploadsTotal       prometheus.Counter   // Signed upload URLs issued
	DatasetsRegistered prometheus.Counter   // Datasets successfully registered
	PredictRows        prometheus.Counter   // Rows scored by batch predict
	PredictionsTotal   prometheus.Counter   // Batch prediction runs
	IngestDuration     prometheus.Histogram // Dataset ingest duration in seconds

	// Registry mirror metrics
	RegistrySyncs        prometheus.Counter // Successful registry writes
	RegistrySyncFailures prometheus.Counter // Failed registry writes
	RegistryBreakerOpen  prometheus.Gauge   // 1 when the registry circuit breaker is open

	// Job metrics
	JobsActive    prometheus.Gauge   // Jobs currently running
	JobsQueued    prometheus.Gauge   // Jobs waiting in the queue
	JobsCompleted prometheus.Counter // Jobs finished successfully
	JobsFailed    prometheus.Counter // Jobs finished with an error

	// System metrics
	WSConnections prometheus.Gauge   // Open websocket event streams
	ErrorsTotal   prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route and status code",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		OptimizeRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "optimize_runs_total",
			Help: "Total optimization runs",
		}),
		OptimizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimize_duration_seconds",
			Help:    "Optimization run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		OptimizeSamples: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimize_samples",
			Help:    "Samples drawn per optimization run",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
		OptimizeEmptyResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "optimize_empty_results_total",
			Help: "Optimization runs that produced no qualifying candidate",
		}),
		SurfaceEvals: factory.NewCounter(prometheus.CounterOpts{
			Name: "surface_evals_total",
			Help: "Total surface evaluations",
		}),
		SurfaceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "surface_duration_seconds",
			Help:    "Surface evaluation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		SurfaceCells: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "surface_cells",
			Help:    "Grid cells evaluated per surface call",
			Buckets: prometheus.ExponentialBuckets(25, 2, 10),
		}),
		TrainRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "train_runs_total",
			Help: "Training runs by model family",
		}, []string{"family"}),
		TrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "train_duration_seconds",
			Help:    "Training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TrainFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "train_failures_total",
			Help: "Total training failures",
		}),
		AdapterCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "adapter_calls_total",
			Help: "Total model adapter predict and predictProba calls",
		}),
		AdapterFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "adapter_failures_total",
			Help: "Total model adapter call failures",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_cache_hits_total",
			Help: "Model cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_cache_misses_total",
			Help: "Model cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_cache_evictions_total",
			Help: "Model cache evictions",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_cache_entries",
			Help: "Current number of cached model artifacts",
		}),
		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Signed upload URLs issued",
		}),
		DatasetsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "datasets_registered_total",
			Help: "Datasets successfully registered",
		}),
		PredictRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "predict_rows_total",
			Help: "Rows scored by batch predictions",
		}),
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Batch prediction runs",
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Dataset ingest duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RegistrySyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_syncs_total",
			Help: "Successful registry mirror writes",
		}),
		RegistrySyncFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_sync_failures_total",
			Help: "Failed registry mirror writes",
		}),
		RegistryBreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registry_breaker_open",
			Help: "1 when the registry circuit breaker is open",
		}),
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_active",
			Help: "Jobs currently running",
		}),
		JobsQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_queued",
			Help: "Jobs waiting in the queue",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Jobs finished successfully",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Jobs finished with an error",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open websocket job event streams",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObserveRequest records one HTTP request outcome.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
