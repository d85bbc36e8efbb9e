package policy

import "time"

// Effect is the outcome a policy asserts when its condition matches.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Valid reports whether the effect is one of the two recognized values.
// Rows with any other stored effect are skipped during evaluation.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Policy is a conditional ALLOW/DENY rule layered on top of base role
// permissions, scoped to one tenant and one (resource, action) pair.
type Policy struct {
	ID        string
	TenantID  string
	Name      string
	Resource  string
	Action    string
	Effect    Effect
	Condition Condition
	Active    bool
	CreatedAt time.Time
}
