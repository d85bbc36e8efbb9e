package access

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/policy"
)

// Source classifies why a decision was reached.
type Source string

const (
	// SourceRoleOnly: base role permission decided, no policy matched.
	SourceRoleOnly Source = "ROLE_ONLY"
	// SourceRoleAndPolicy: at least one policy condition matched.
	SourceRoleAndPolicy Source = "ROLE_AND_POLICY"
	// SourceDenyNoPermission: neither role permission nor policy granted access.
	SourceDenyNoPermission Source = "DENY_NO_PERMISSION"
)

// MatchedPolicy records a policy whose condition held, tagged with its effect.
type MatchedPolicy struct {
	ID     string        `json:"id"`
	Effect policy.Effect `json:"effect"`
}

// Decision is the outcome of one access evaluation. It is computed per
// request and never persisted as an entity.
type Decision struct {
	Allowed         bool            `json:"allowed"`
	Source          Source          `json:"source"`
	MatchedPolicies []MatchedPolicy `json:"matchedPolicies"`
}

// RoleResolver yields the permission codes a user holds within a tenant.
type RoleResolver interface {
	ResolvePermissionCodes(ctx context.Context, userID, tenantID string) (map[string]struct{}, error)
}

// PolicySource yields active policies for a (tenant, resource, action) tuple.
type PolicySource interface {
	FindActive(ctx context.Context, tenantID, resource, action string) ([]policy.Policy, error)
}

// Engine combines base role permissions with conditional policies into an
// allow/deny verdict. Both the synchronous check path and the queued batch
// path invoke this single implementation.
type Engine struct {
	roles    RoleResolver
	policies PolicySource
}

// NewEngine constructs an Engine.
func NewEngine(roles RoleResolver, policies PolicySource) *Engine {
	return &Engine{roles: roles, policies: policies}
}

// Decide evaluates whether the user may perform action on resource.
//
// An explicit DENY policy always wins regardless of role state; an explicit
// ALLOW policy can grant access even without base role permission; absent any
// matched policy, base role permission alone decides. Aside from the two
// reads it is pure and deterministic.
func (e *Engine) Decide(ctx context.Context, tenantID, userID, resource, action string, evalCtx map[string]any) (Decision, error) {
	codes, err := e.roles.ResolvePermissionCodes(ctx, userID, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve permissions: %w", err)
	}
	_, hasRolePermission := codes[resource+"."+action]

	policies, err := e.policies.FindActive(ctx, tenantID, resource, action)
	if err != nil {
		return Decision{}, fmt.Errorf("load policies: %w", err)
	}

	condCtx := make(map[string]any, len(evalCtx)+1)
	for k, v := range evalCtx {
		condCtx[k] = v
	}
	condCtx["userId"] = userID

	matched := []MatchedPolicy{}
	denies := 0
	allows := 0
	for _, p := range policies {
		// Stored rows with a stale effect are skipped, never fatal.
		if !p.Effect.Valid() {
			continue
		}
		if p.Condition == nil || !p.Condition.Evaluate(condCtx) {
			continue
		}
		matched = append(matched, MatchedPolicy{ID: p.ID, Effect: p.Effect})
		if p.Effect == policy.EffectDeny {
			denies++
		} else {
			allows++
		}
	}

	decision := Decision{MatchedPolicies: matched}
	switch {
	case denies > 0:
		decision.Allowed = false
		decision.Source = SourceRoleAndPolicy
	case allows > 0:
		decision.Allowed = true
		decision.Source = SourceRoleAndPolicy
	case hasRolePermission:
		decision.Allowed = true
		decision.Source = SourceRoleOnly
	default:
		decision.Allowed = false
		decision.Source = SourceDenyNoPermission
	}
	return decision, nil
}
