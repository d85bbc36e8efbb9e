package webhooks

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type mockRepo struct {
	endpoints map[string]*Endpoint
	pending   map[string]bool
	listed    []Delivery
	lastList  struct {
		status    DeliveryStatus
		eventType string
		limit     int
	}
}

func newMockRepo() *mockRepo {
	return &mockRepo{endpoints: map[string]*Endpoint{}, pending: map[string]bool{}}
}

func (m *mockRepo) CreateEndpoint(ctx context.Context, e Endpoint) error {
	m.endpoints[e.ID] = &e
	return nil
}

func (m *mockRepo) ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	var out []Endpoint
	for _, e := range m.endpoints {
		if e.TenantID == tenantID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockRepo) GetActiveEndpoint(ctx context.Context, tenantID, id string) (*Endpoint, error) {
	e, ok := m.endpoints[id]
	if !ok || e.TenantID != tenantID || !e.Active {
		return nil, shared.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockRepo) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	e, ok := m.endpoints[id]
	if !ok || e.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(m.endpoints, id)
	return nil
}

func (m *mockRepo) HasPendingDeliveries(ctx context.Context, endpointID string) (bool, error) {
	return m.pending[endpointID], nil
}

func (m *mockRepo) ListDeliveries(ctx context.Context, tenantID string, status DeliveryStatus, eventType string, limit int) ([]Delivery, error) {
	m.lastList.status = status
	m.lastList.eventType = eventType
	m.lastList.limit = limit
	return m.listed, nil
}

func TestCreateEndpointPersists(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)

	endpoint, err := svc.CreateEndpoint(context.Background(), "t1", CreateEndpointRequest{
		URL:    "https://receiver.example.com/hooks",
		Secret: "super-secret-signing-key",
	})
	require.NoError(t, err)
	require.True(t, endpoint.Active, "active defaults to true")
	require.Contains(t, repo.endpoints, endpoint.ID)
}

func TestCreateEndpointRejectsBadURL(t *testing.T) {
	svc := NewService(newMockRepo(), nil)

	for _, bad := range []string{"not-a-url", "ftp://example.com/hook", "://missing"} {
		_, err := svc.CreateEndpoint(context.Background(), "t1", CreateEndpointRequest{URL: bad, Secret: "super-secret-signing-key"})
		require.Error(t, err, "url %q must be rejected", bad)
	}
}

func TestCreateEndpointPreviewDoesNotPersist(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	ctx := shared.ContextWithPreviewMode(context.Background(), true)

	endpoint, err := svc.CreateEndpoint(ctx, "t1", CreateEndpointRequest{
		URL:    "https://receiver.example.com/hooks",
		Secret: "super-secret-signing-key",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(endpoint.ID, "preview-"))
	require.Empty(t, repo.endpoints)
}

func TestDeleteEndpointRefusedWhilePending(t *testing.T) {
	repo := newMockRepo()
	repo.endpoints["e1"] = &Endpoint{ID: "e1", TenantID: "t1", Active: true}
	repo.pending["e1"] = true
	svc := NewService(repo, nil)

	err := svc.DeleteEndpoint(context.Background(), "t1", "e1")
	require.Error(t, err)
	require.Contains(t, repo.endpoints, "e1")
}

func TestDeleteEndpointRemoves(t *testing.T) {
	repo := newMockRepo()
	repo.endpoints["e1"] = &Endpoint{ID: "e1", TenantID: "t1", Active: true}
	svc := NewService(repo, nil)

	require.NoError(t, svc.DeleteEndpoint(context.Background(), "t1", "e1"))
	require.Empty(t, repo.endpoints)
}

func TestDeliveriesValidatesStatus(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)

	_, err := svc.Deliveries(context.Background(), "t1", "BOGUS", "")
	require.Error(t, err)

	got, err := svc.Deliveries(context.Background(), "t1", "failed", "policy.updated")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, DeliveryFailed, repo.lastList.status, "status filter is case insensitive")
	require.Equal(t, "policy.updated", repo.lastList.eventType)
	require.Equal(t, deliveryListLimit, repo.lastList.limit)
}

func TestTestDeliveryPreviewSuppressesSend(t *testing.T) {
	repo := newMockRepo()
	repo.endpoints["e1"] = &Endpoint{ID: "e1", TenantID: "t1", URL: "https://receiver.example.com/hooks", Secret: "super-secret-signing-key", Active: true, CreatedAt: time.Now()}
	svc := NewService(repo, nil)
	ctx := shared.ContextWithPreviewMode(context.Background(), true)

	result, err := svc.TestDelivery(ctx, "t1", "e1", "policy.updated", json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Preview)
	require.Equal(t, "https://receiver.example.com/hooks", result.Preview.URL)
	require.Equal(t, "policy.updated", result.Preview.EventType)
}

func TestTestDeliveryUnknownEndpoint(t *testing.T) {
	svc := NewService(newMockRepo(), nil)

	_, err := svc.TestDelivery(context.Background(), "t1", "missing", "policy.updated", json.RawMessage(`{}`))
	require.ErrorIs(t, err, shared.ErrNotFound)
}
