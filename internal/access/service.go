package access

import (
	"context"
	"log/slog"

	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// AuditRecord captures one evaluation for the asynchronous audit trail.
type AuditRecord struct {
	TenantID string         `json:"tenantId"`
	UserID   string         `json:"userId"`
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Allowed  bool           `json:"allowed"`
	Source   string         `json:"source"`
	Context  map[string]any `json:"context,omitempty"`
}

// AuditSink hands audit records to the durable queue. Failures never block a
// decision; the caller logs and moves on.
type AuditSink interface {
	EnqueueAuditInsert(ctx context.Context, rec AuditRecord) error
}

// EvaluateRequest is a queued evaluation order for the batch path.
type EvaluateRequest struct {
	TenantID string         `json:"tenantId"`
	UserID   string         `json:"userId"`
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Context  map[string]any `json:"context,omitempty"`
}

// AsyncEvaluator enqueues an evaluation for background processing and returns
// the queued task id.
type AsyncEvaluator interface {
	EnqueueEvaluate(ctx context.Context, req EvaluateRequest) (string, error)
}

// Service drives the synchronous evaluation paths. Every synchronous answer
// is computed fresh; only the queued path reads the decision cache.
type Service struct {
	engine  *Engine
	audit   AuditSink
	async   AsyncEvaluator
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewService(engine *Engine, audit AuditSink, async AsyncEvaluator, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, audit: audit, async: async, metrics: metrics, logger: logger}
}

// Check answers a caller-facing permission question for the authenticated
// principal. With logEnabled and outside preview mode it also queues an audit
// record; an enqueue failure is logged but never surfaces to the caller.
func (s *Service) Check(ctx context.Context, principal shared.Principal, resource, action string, evalCtx map[string]any, logEnabled bool) (Decision, error) {
	decision, err := s.engine.Decide(ctx, principal.TenantID, principal.UserID, resource, action, evalCtx)
	if err != nil {
		return Decision{}, err
	}

	s.metrics.IncAccessDecision(principal.TenantID, resource, action, decision.Allowed)
	s.metrics.IncPolicyEvaluation(principal.TenantID, "sync")
	s.logger.Info("access check",
		slog.String("tenant_id", principal.TenantID),
		slog.String("user_id", principal.UserID),
		slog.String("resource", resource),
		slog.String("action", action),
		slog.Bool("allowed", decision.Allowed),
		slog.String("source", string(decision.Source)),
	)

	if logEnabled && !shared.PreviewModeFromContext(ctx) && s.audit != nil {
		rec := AuditRecord{
			TenantID: principal.TenantID,
			UserID:   principal.UserID,
			Resource: resource,
			Action:   action,
			Allowed:  decision.Allowed,
			Source:   string(decision.Source),
			Context:  evalCtx,
		}
		if err := s.audit.EnqueueAuditInsert(ctx, rec); err != nil {
			s.logger.Error("enqueue audit record", slog.Any("error", err))
		}
	}
	return decision, nil
}

// Evaluate computes a fresh decision for an arbitrary user, bypassing both
// cache and audit trail. It backs the administrative explain endpoint.
func (s *Service) Evaluate(ctx context.Context, tenantID, userID, resource, action string, evalCtx map[string]any) (Decision, error) {
	return s.engine.Decide(ctx, tenantID, userID, resource, action, evalCtx)
}

// EnqueueEvaluate submits an evaluation to the background queue.
func (s *Service) EnqueueEvaluate(ctx context.Context, req EvaluateRequest) (string, error) {
	return s.async.EnqueueEvaluate(ctx, req)
}
