package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for policies.
type RepositoryPort interface {
	FindActive(ctx context.Context, tenantID, resource, action string) ([]Policy, error)
	List(ctx context.Context, tenantID string, active *bool) ([]Policy, error)
	Get(ctx context.Context, tenantID, id string) (*Policy, error)
	Create(ctx context.Context, p Policy) error
	Update(ctx context.Context, tenantID, id string, name *string, condition Condition, active *bool) (*Policy, error)
}

// EventEmitter publishes tenant events toward the webhook pipeline.
// Implementations are best-effort; Emit must never block policy mutations.
type EventEmitter interface {
	Emit(ctx context.Context, tenantID, eventType string, payload any)
}

// Service handles policy management business logic.
type Service struct {
	repo   RepositoryPort
	events EventEmitter
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, events EventEmitter) *Service {
	return &Service{repo: repo, events: events}
}

// Create validates and persists a new policy, then emits policy.updated.
// In preview mode the policy is validated but never stored.
func (s *Service) Create(ctx context.Context, tenantID string, req CreatePolicyRequest) (*Policy, error) {
	cond := DecodeCondition(req.Condition)
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	effect := Effect(req.Effect)
	if !effect.Valid() {
		return nil, fmt.Errorf("policy: effect must be ALLOW or DENY")
	}

	p := Policy{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      req.Name,
		Resource:  req.Resource,
		Action:    req.Action,
		Effect:    effect,
		Condition: cond,
		Active:    true,
	}

	if shared.PreviewModeFromContext(ctx) {
		p.ID = "preview-" + p.ID
		return &p, nil
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}
	s.emit(ctx, tenantID, "policy.updated", p)
	return &p, nil
}

// List returns the tenant's policies, optionally filtered by active state.
func (s *Service) List(ctx context.Context, tenantID string, active *bool) ([]Policy, error) {
	return s.repo.List(ctx, tenantID, active)
}

// Get fetches one policy scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Policy, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// Update applies partial changes and emits policy.updated.
// In preview mode the merged result is returned without persisting.
func (s *Service) Update(ctx context.Context, tenantID, id string, req UpdatePolicyRequest) (*Policy, error) {
	var cond Condition
	if req.Condition != nil {
		cond = DecodeCondition(req.Condition)
		if err := cond.Validate(); err != nil {
			return nil, err
		}
	}

	if shared.PreviewModeFromContext(ctx) {
		existing, err := s.repo.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if req.Name != nil {
			existing.Name = *req.Name
		}
		if cond != nil {
			existing.Condition = cond
		}
		if req.Active != nil {
			existing.Active = *req.Active
		}
		return existing, nil
	}

	updated, err := s.repo.Update(ctx, tenantID, id, req.Name, cond, req.Active)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, tenantID, "policy.updated", *updated)
	return updated, nil
}

func (s *Service) emit(ctx context.Context, tenantID, eventType string, p Policy) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, tenantID, eventType, p)
}
