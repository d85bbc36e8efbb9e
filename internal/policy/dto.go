package policy

import (
	"encoding/json"
	"time"
)

// CreatePolicyRequest carries the payload for POST /policies.
type CreatePolicyRequest struct {
	Name      string          `json:"name" validate:"required"`
	Resource  string          `json:"resource" validate:"required"`
	Action    string          `json:"action" validate:"required"`
	Effect    string          `json:"effect" validate:"required,oneof=ALLOW DENY"`
	Condition json.RawMessage `json:"condition" validate:"required"`
}

// UpdatePolicyRequest carries the payload for PATCH /policies/{id}.
// Nil fields are left unchanged.
type UpdatePolicyRequest struct {
	Name      *string         `json:"name"`
	Condition json.RawMessage `json:"condition"`
	Active    *bool           `json:"active"`
}

// PolicyResponse is the wire representation of a policy.
type PolicyResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Effect    string    `json:"effect"`
	Condition Condition `json:"condition"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResponse(p Policy) PolicyResponse {
	return PolicyResponse{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Name:      p.Name,
		Resource:  p.Resource,
		Action:    p.Action,
		Effect:    string(p.Effect),
		Condition: p.Condition,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

func toResponses(policies []Policy) []PolicyResponse {
	out := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toResponse(p))
	}
	return out
}
