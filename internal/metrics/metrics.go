package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrumentation for the memory lifecycle engine.
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	RunsFailed    *prometheus.CounterVec

	CandidatesApplied prometheus.Counter
	CandidatesDropped prometheus.Counter

	OracleCalls   prometheus.Counter
	OracleLatency prometheus.Histogram

	MemoriesDecayed    prometheus.Counter
	CacheInvalidations prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memoir_pipeline_runs_started_total",
			Help: "Pipeline runs started, by kind.",
		}, []string{"kind"}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memoir_pipeline_runs_completed_total",
			Help: "Pipeline runs completed, by kind.",
		}, []string{"kind"}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memoir_pipeline_runs_failed_total",
			Help: "Pipeline runs failed after exhausting retries, by kind.",
		}, []string{"kind"}),
		CandidatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "memoir_candidates_applied_total",
			Help: "Extraction candidates applied to the memory store.",
		}),
		CandidatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "memoir_candidates_dropped_total",
			Help: "Extraction candidates rejected by validation.",
		}),
		OracleCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "memoir_oracle_calls_total",
			Help: "Calls made to the reasoning oracle.",
		}),
		OracleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "memoir_oracle_latency_seconds",
			Help:    "Oracle call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		MemoriesDecayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "memoir_memories_deactivated_by_decay_total",
			Help: "Memories deactivated by the decay sweep.",
		}),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "memoir_context_cache_invalidations_total",
			Help: "Context cache invalidation signals emitted.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
