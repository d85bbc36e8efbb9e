package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/access"
	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
	"github.com/gatehouse-io/gatehouse/internal/observability"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EvaluateJob computes access decisions in the background. The cached verdict
// is served when fresh; anything that goes wrong resolves to a denied verdict
// rather than an error, so a broken dependency can never fail open.
type EvaluateJob struct {
	Engine     *access.Engine
	Cache      *access.DecisionCache
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	AppMetrics *observability.Metrics
}

// NewEvaluateJob wires dependencies for the evaluation handler.
func NewEvaluateJob(engine *access.Engine, cache *access.DecisionCache, logger *slog.Logger, metrics *jobmetrics.Metrics, appMetrics *observability.Metrics) *EvaluateJob {
	return &EvaluateJob{Engine: engine, Cache: cache, Logger: logger, Metrics: metrics, AppMetrics: appMetrics}
}

// Handle processes access:evaluate tasks.
func (j *EvaluateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("evaluate: handler not configured")
	}
	var req access.EvaluateRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAccessEvaluate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("tenant_id", req.TenantID),
		slog.String("user_id", req.UserID),
		slog.String("resource", req.Resource),
		slog.String("action", req.Action),
	)

	if j.Cache != nil {
		cached, ok, err := j.Cache.Get(ctx, req.TenantID, req.UserID, req.Resource, req.Action)
		if err != nil {
			logger.Warn("decision cache read", slog.Any("error", err))
		} else if ok {
			logger.Info("evaluate served from cache", slog.Bool("allowed", cached.Allowed))
			return nil
		}
	}

	allowed := j.decideFailClosed(ctx, req, logger)

	j.AppMetrics.IncPolicyEvaluation(req.TenantID, "async")
	j.AppMetrics.IncAccessDecision(req.TenantID, req.Resource, req.Action, allowed)

	if j.Cache != nil {
		if err := j.Cache.Put(ctx, req.TenantID, req.UserID, req.Resource, req.Action, access.CachedDecision{Allowed: allowed}); err != nil {
			logger.Warn("decision cache write", slog.Any("error", err))
		}
	}
	logger.Info("evaluate completed", slog.Bool("allowed", allowed))
	return nil
}

// decideFailClosed runs the engine and converts every failure mode, panics
// included, into a denied verdict.
func (j *EvaluateJob) decideFailClosed(ctx context.Context, req access.EvaluateRequest, logger *slog.Logger) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("evaluate panicked", slog.Any("panic", r))
			allowed = false
		}
	}()
	decision, err := j.Engine.Decide(ctx, req.TenantID, req.UserID, req.Resource, req.Action, req.Context)
	if err != nil {
		logger.Error("evaluate failed, denying", slog.Any("error", err))
		return false
	}
	return decision.Allowed
}

func (j *EvaluateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAccessEvaluate))
	}
	return slog.Default().With(slog.String("job", TaskAccessEvaluate))
}

func (j *EvaluateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
