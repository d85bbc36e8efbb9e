package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines the persistence contract the service relies on.
type RepositoryPort interface {
	CreateEndpoint(ctx context.Context, e Endpoint) error
	ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error)
	GetActiveEndpoint(ctx context.Context, tenantID, id string) (*Endpoint, error)
	DeleteEndpoint(ctx context.Context, tenantID, id string) error
	HasPendingDeliveries(ctx context.Context, endpointID string) (bool, error)
	ListDeliveries(ctx context.Context, tenantID string, status DeliveryStatus, eventType string, limit int) ([]Delivery, error)
}

const deliveryListLimit = 100

// Service manages webhook endpoints and exposes their delivery history.
type Service struct {
	repo       RepositoryPort
	dispatcher *Dispatcher
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, dispatcher *Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher}
}

// CreateEndpoint registers a receiver for the tenant's events. In preview
// mode the input is validated and a transient endpoint is returned without
// touching storage.
func (s *Service) CreateEndpoint(ctx context.Context, tenantID string, req CreateEndpointRequest) (*Endpoint, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	endpoint := Endpoint{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		URL:       req.URL,
		Secret:    req.Secret,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}
	if shared.PreviewModeFromContext(ctx) {
		endpoint.ID = "preview-" + endpoint.ID
		return &endpoint, nil
	}
	if err := s.repo.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}
	return &endpoint, nil
}

// ListEndpoints returns the tenant's registered endpoints.
func (s *Service) ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	return s.repo.ListEndpoints(ctx, tenantID)
}

// DeleteEndpoint removes an endpoint. Deletion is refused while deliveries
// are still in flight so their records keep a valid endpoint reference.
func (s *Service) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	pending, err := s.repo.HasPendingDeliveries(ctx, id)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("endpoint has pending deliveries, retry once they settle")
	}
	if shared.PreviewModeFromContext(ctx) {
		return nil
	}
	return s.repo.DeleteEndpoint(ctx, tenantID, id)
}

// Deliveries returns the tenant's most recent delivery records.
func (s *Service) Deliveries(ctx context.Context, tenantID, status, eventType string) ([]Delivery, error) {
	var st DeliveryStatus
	if status != "" {
		st = DeliveryStatus(strings.ToUpper(status))
		if !st.Valid() {
			return nil, fmt.Errorf("invalid status %q, must be one of PENDING, SUCCESS, FAILED", status)
		}
	}
	deliveries, err := s.repo.ListDeliveries(ctx, tenantID, st, eventType, deliveryListLimit)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []Delivery{}
	}
	return deliveries, nil
}

// TestResult describes the outcome of a test delivery. Preview carries the
// request that would have been sent when preview mode suppressed it.
type TestResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Preview *TestPreview `json:"preview,omitempty"`
}

// TestPreview shows what a suppressed test delivery would have sent.
type TestPreview struct {
	URL       string            `json:"url"`
	EventType string            `json:"eventType"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers"`
}

// TestDelivery sends a caller-supplied event to one endpoint. In preview mode
// nothing leaves the service; the would-be request is described instead.
func (s *Service) TestDelivery(ctx context.Context, tenantID, endpointID, eventType string, payload json.RawMessage) (*TestResult, error) {
	endpoint, err := s.repo.GetActiveEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}

	if shared.PreviewModeFromContext(ctx) {
		return &TestResult{
			Success: true,
			Message: "preview mode: delivery suppressed",
			Preview: &TestPreview{
				URL:       endpoint.URL,
				EventType: eventType,
				Payload:   payload,
				Headers: map[string]string{
					"Content-Type":        "application/json",
					"X-Webhook-Signature": "[generated at send time]",
					"X-Webhook-Timestamp": "[generated at send time]",
				},
			},
		}, nil
	}

	body, err := json.Marshal(eventEnvelope{Event: eventType, Data: payload})
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.DeliverTo(ctx, *endpoint, eventType, body); err != nil {
		return nil, err
	}
	return &TestResult{Success: true, Message: "test delivery recorded"}, nil
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", parsed.Scheme)
	}
	return nil
}
