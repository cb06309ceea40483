package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/memoirlabs/memoir/internal/cache"
	"github.com/memoirlabs/memoir/internal/config"
	"github.com/memoirlabs/memoir/internal/metrics"
	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/store"
)

// Pipeline step names. Runs persist the next step to execute before
// executing it, so a crashed run resumes here instead of starting over.
const (
	stepGatherContext = "gather_context"
	stepExtract       = "extract_candidates"
	stepApply         = "apply_candidates"
	stepPlan          = "plan"
	stepExecute       = "execute"
	stepFinalize      = "finalize"
)

// Engine orchestrates the memory lifecycle: extraction from journal
// entries, consolidation of oversized active sets, and decay.
type Engine struct {
	DB          *store.DB
	Oracle      oracle.Oracle
	Invalidator cache.Invalidator
	Metrics     *metrics.Metrics
	Lifecycle   config.LifecycleConfig

	tracer trace.Tracer
}

// New creates a new Engine. Cache invalidation defaults to a no-op and
// metrics to a private registry; override both via the setters when wiring
// a full server.
func New(db *store.DB, orc oracle.Oracle, cfg config.LifecycleConfig) *Engine {
	return &Engine{
		DB:          db,
		Oracle:      orc,
		Invalidator: cache.Nop{},
		Metrics:     metrics.New(),
		Lifecycle:   cfg,
		tracer:      otel.Tracer("memoir/engine"),
	}
}

// SetInvalidator configures the cache invalidation signal target.
func (e *Engine) SetInvalidator(inv cache.Invalidator) {
	e.Invalidator = inv
}

// SetMetrics configures the shared metrics registry.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.Metrics = m
}

func (e *Engine) maxAttempts() int {
	if e.Lifecycle.MaxAttempts <= 0 {
		return 3
	}
	return e.Lifecycle.MaxAttempts
}

func (e *Engine) consolidationThreshold() int {
	if e.Lifecycle.ConsolidationThreshold <= 0 {
		return 20
	}
	return e.Lifecycle.ConsolidationThreshold
}

func (e *Engine) consolidationTarget() int {
	if e.Lifecycle.ConsolidationTarget <= 0 {
		return 15
	}
	return e.Lifecycle.ConsolidationTarget
}

// retryStep runs op under the fixed-delay retry policy, bumping the run's
// attempt counter before each try. The counter survives restarts, so a
// resumed run does not get a fresh retry budget for the same step.
func (e *Engine) retryStep(ctx context.Context, runID string, op func() error) error {
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(e.Lifecycle.RetryDelay()),
		uint64(e.maxAttempts()-1),
	)
	return backoff.Retry(func() error {
		if err := e.DB.IncrementRunAttempts(runID); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, backoff.WithContext(policy, ctx))
}

// callOracle instruments a single oracle call.
func (e *Engine) callOracle(op func() error) error {
	start := time.Now()
	err := op()
	e.Metrics.OracleCalls.Inc()
	e.Metrics.OracleLatency.Observe(time.Since(start).Seconds())
	return err
}
