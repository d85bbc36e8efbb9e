package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type mockRepo struct {
	policies  map[string]*Policy
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{policies: make(map[string]*Policy)}
}

func (m *mockRepo) FindActive(_ context.Context, tenantID, resource, action string) ([]Policy, error) {
	var out []Policy
	for _, p := range m.policies {
		if p.TenantID == tenantID && p.Resource == resource && p.Action == action && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) List(_ context.Context, tenantID string, active *bool) ([]Policy, error) {
	var out []Policy
	for _, p := range m.policies {
		if p.TenantID != tenantID {
			continue
		}
		if active != nil && p.Active != *active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) Get(_ context.Context, tenantID, id string) (*Policy, error) {
	p, ok := m.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepo) Create(_ context.Context, p Policy) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.policies[p.ID] = &p
	return nil
}

func (m *mockRepo) Update(_ context.Context, tenantID, id string, name *string, condition Condition, active *bool) (*Policy, error) {
	p, ok := m.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	if name != nil {
		p.Name = *name
	}
	if condition != nil {
		p.Condition = condition
	}
	if active != nil {
		p.Active = *active
	}
	copied := *p
	return &copied, nil
}

type mockEmitter struct {
	events []string
}

func (m *mockEmitter) Emit(_ context.Context, tenantID, eventType string, _ any) {
	m.events = append(m.events, tenantID+"/"+eventType)
}

func validCreateRequest() CreatePolicyRequest {
	return CreatePolicyRequest{
		Name:      "finance only",
		Resource:  "documents",
		Action:    "write",
		Effect:    "ALLOW",
		Condition: json.RawMessage(`{"field":"department","op":"==","value":"finance"}`),
	}
}

func TestCreatePolicyEmitsWebhookEvent(t *testing.T) {
	repo := newMockRepo()
	emitter := &mockEmitter{}
	svc := NewService(repo, emitter)

	p, err := svc.Create(context.Background(), "t1", validCreateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Active)
	assert.Equal(t, EffectAllow, p.Effect)
	assert.Len(t, repo.policies, 1)
	assert.Equal(t, []string{"t1/policy.updated"}, emitter.events)
}

func TestCreatePolicyRejectsMalformedCondition(t *testing.T) {
	svc := NewService(newMockRepo(), &mockEmitter{})

	req := validCreateRequest()
	req.Condition = json.RawMessage(`{"bogus":true}`)
	_, err := svc.Create(context.Background(), "t1", req)
	assert.Error(t, err)

	req = validCreateRequest()
	req.Condition = json.RawMessage(`{"field":"a","op":"~=","value":1}`)
	_, err = svc.Create(context.Background(), "t1", req)
	assert.Error(t, err)
}

func TestCreatePolicyRejectsInvalidEffect(t *testing.T) {
	svc := NewService(newMockRepo(), &mockEmitter{})

	req := validCreateRequest()
	req.Effect = "MAYBE"
	_, err := svc.Create(context.Background(), "t1", req)
	assert.Error(t, err)
}

func TestCreatePolicyPreviewModeSkipsPersistenceAndEvents(t *testing.T) {
	repo := newMockRepo()
	emitter := &mockEmitter{}
	svc := NewService(repo, emitter)

	ctx := shared.ContextWithPreviewMode(context.Background(), true)
	p, err := svc.Create(ctx, "t1", validCreateRequest())
	require.NoError(t, err)
	assert.Contains(t, p.ID, "preview-")
	assert.Empty(t, repo.policies)
	assert.Empty(t, emitter.events)
}

func TestUpdatePolicy(t *testing.T) {
	repo := newMockRepo()
	emitter := &mockEmitter{}
	svc := NewService(repo, emitter)

	created, err := svc.Create(context.Background(), "t1", validCreateRequest())
	require.NoError(t, err)

	name := "renamed"
	inactive := false
	updated, err := svc.Update(context.Background(), "t1", created.ID, UpdatePolicyRequest{
		Name:   &name,
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Active)
	assert.Equal(t, []string{"t1/policy.updated", "t1/policy.updated"}, emitter.events)
}

func TestUpdatePolicyUnknownIDReturnsNotFound(t *testing.T) {
	svc := NewService(newMockRepo(), &mockEmitter{})

	_, err := svc.Update(context.Background(), "t1", "missing", UpdatePolicyRequest{})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestUpdatePolicyPreviewModeDoesNotPersist(t *testing.T) {
	repo := newMockRepo()
	emitter := &mockEmitter{}
	svc := NewService(repo, emitter)

	created, err := svc.Create(context.Background(), "t1", validCreateRequest())
	require.NoError(t, err)
	emitter.events = nil

	name := "preview name"
	ctx := shared.ContextWithPreviewMode(context.Background(), true)
	previewed, err := svc.Update(ctx, "t1", created.ID, UpdatePolicyRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "preview name", previewed.Name)

	stored, err := svc.Get(context.Background(), "t1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "finance only", stored.Name, "preview update must not persist")
	assert.Empty(t, emitter.events)
}
