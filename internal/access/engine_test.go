package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/policy"
)

type stubRoles struct {
	codes map[string]struct{}
	err   error
}

func (s *stubRoles) ResolvePermissionCodes(ctx context.Context, userID, tenantID string) (map[string]struct{}, error) {
	return s.codes, s.err
}

type stubPolicies struct {
	policies []policy.Policy
	err      error
}

func (s *stubPolicies) FindActive(ctx context.Context, tenantID, resource, action string) ([]policy.Policy, error) {
	return s.policies, s.err
}

func perms(codes ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		out[c] = struct{}{}
	}
	return out
}

func condPolicy(t *testing.T, id string, effect policy.Effect, rawCond string) policy.Policy {
	t.Helper()
	cond := policy.DecodeCondition([]byte(rawCond))
	require.NoError(t, cond.Validate())
	return policy.Policy{ID: id, TenantID: "t1", Resource: "documents", Action: "delete", Effect: effect, Condition: cond, Active: true}
}

func TestDecideRolePermissionAloneAllows(t *testing.T) {
	eng := NewEngine(&stubRoles{codes: perms("documents.delete")}, &stubPolicies{})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", nil)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, SourceRoleOnly, d.Source)
	require.Empty(t, d.MatchedPolicies)
}

func TestDecideNoPermissionNoPoliciesDenies(t *testing.T) {
	eng := NewEngine(&stubRoles{codes: perms()}, &stubPolicies{})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", nil)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceDenyNoPermission, d.Source)
}

func TestDecideAllowPolicyGrantsWithoutRolePermission(t *testing.T) {
	pol := condPolicy(t, "p1", policy.EffectAllow, `{"field":"department","op":"==","value":"legal"}`)
	eng := NewEngine(&stubRoles{codes: perms()}, &stubPolicies{policies: []policy.Policy{pol}})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", map[string]any{"department": "legal"})
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, SourceRoleAndPolicy, d.Source)
	require.Len(t, d.MatchedPolicies, 1)
	require.Equal(t, "p1", d.MatchedPolicies[0].ID)
}

func TestDecideDenyPolicyOverridesRolePermission(t *testing.T) {
	pol := condPolicy(t, "p1", policy.EffectDeny, `{"field":"department","op":"!=","value":"legal"}`)
	eng := NewEngine(&stubRoles{codes: perms("documents.delete")}, &stubPolicies{policies: []policy.Policy{pol}})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", map[string]any{"department": "sales"})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceRoleAndPolicy, d.Source)
}

func TestDecideDenyOverridesAllow(t *testing.T) {
	allow := condPolicy(t, "p-allow", policy.EffectAllow, `{"field":"level","op":">=","value":3}`)
	deny := condPolicy(t, "p-deny", policy.EffectDeny, `{"field":"suspended","op":"==","value":true}`)
	eng := NewEngine(&stubRoles{codes: perms("documents.delete")}, &stubPolicies{policies: []policy.Policy{allow, deny}})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", map[string]any{"level": 5, "suspended": true})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceRoleAndPolicy, d.Source)
	require.Len(t, d.MatchedPolicies, 2)
}

func TestDecideUnmatchedPoliciesFallBackToRole(t *testing.T) {
	pol := condPolicy(t, "p1", policy.EffectDeny, `{"field":"department","op":"==","value":"legal"}`)
	src := &stubPolicies{policies: []policy.Policy{pol}}
	evalCtx := map[string]any{"department": "sales"}

	withPerm := NewEngine(&stubRoles{codes: perms("documents.delete")}, src)
	d, err := withPerm.Decide(context.Background(), "t1", "u1", "documents", "delete", evalCtx)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, SourceRoleOnly, d.Source)
	require.Empty(t, d.MatchedPolicies)

	withoutPerm := NewEngine(&stubRoles{codes: perms()}, src)
	d, err = withoutPerm.Decide(context.Background(), "t1", "u1", "documents", "delete", evalCtx)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceDenyNoPermission, d.Source)
}

func TestDecideInjectsUserIDIntoConditionContext(t *testing.T) {
	pol := condPolicy(t, "p1", policy.EffectAllow, `{"field":"ownerId","op":"==","valueFrom":"userId"}`)
	eng := NewEngine(&stubRoles{codes: perms()}, &stubPolicies{policies: []policy.Policy{pol}})

	d, err := eng.Decide(context.Background(), "t1", "u42", "documents", "delete", map[string]any{"ownerId": "u42"})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = eng.Decide(context.Background(), "t1", "u7", "documents", "delete", map[string]any{"ownerId": "u42"})
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestDecideCallerContextCannotOverrideUserID(t *testing.T) {
	pol := condPolicy(t, "p1", policy.EffectAllow, `{"field":"ownerId","op":"==","valueFrom":"userId"}`)
	eng := NewEngine(&stubRoles{codes: perms()}, &stubPolicies{policies: []policy.Policy{pol}})

	// A spoofed userId in the caller context loses to the authenticated one.
	d, err := eng.Decide(context.Background(), "t1", "u7", "documents", "delete", map[string]any{"ownerId": "u42", "userId": "u42"})
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestDecideSkipsInvalidEffect(t *testing.T) {
	bad := condPolicy(t, "p1", policy.Effect("MAYBE"), `{"field":"department","op":"==","value":"legal"}`)
	eng := NewEngine(&stubRoles{codes: perms("documents.delete")}, &stubPolicies{policies: []policy.Policy{bad}})

	d, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", map[string]any{"department": "legal"})
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, SourceRoleOnly, d.Source)
	require.Empty(t, d.MatchedPolicies)
}

func TestDecidePropagatesResolverErrors(t *testing.T) {
	boom := errors.New("db down")

	eng := NewEngine(&stubRoles{err: boom}, &stubPolicies{})
	_, err := eng.Decide(context.Background(), "t1", "u1", "documents", "delete", nil)
	require.ErrorIs(t, err, boom)

	eng = NewEngine(&stubRoles{codes: perms()}, &stubPolicies{err: boom})
	_, err = eng.Decide(context.Background(), "t1", "u1", "documents", "delete", nil)
	require.ErrorIs(t, err, boom)
}
