package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/gatehouse/internal/observability"
)

// DefaultDispatchTimeout bounds one delivery attempt end to end.
const DefaultDispatchTimeout = 10 * time.Second

// eventEnvelope is the body POSTed to receivers. The signature covers the
// serialized envelope byte for byte.
type eventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DispatchStore is the persistence surface the dispatcher needs.
type DispatchStore interface {
	ListActiveEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error)
	CreateDelivery(ctx context.Context, d Delivery) error
	MarkDelivery(ctx context.Context, id string, status DeliveryStatus, attemptAt time.Time) error
}

// Dispatcher fans tenant events out to registered endpoints, recording one
// delivery per endpoint.
type Dispatcher struct {
	store   DispatchStore
	client  *http.Client
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewDispatcher constructs a Dispatcher. A nil client gets the default
// delivery timeout.
func NewDispatcher(store DispatchStore, client *http.Client, metrics *observability.Metrics, logger *slog.Logger, newID func() string) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultDispatchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Dispatcher{
		store:   store,
		client:  client,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newID,
	}
}

// Dispatch delivers one event to every active endpoint of the tenant. Each
// endpoint gets its own delivery record; one receiver failing never blocks
// the others, and per-endpoint failures are recorded rather than returned.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, eventType string, data json.RawMessage) error {
	endpoints, err := d.store.ListActiveEndpoints(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(eventEnvelope{Event: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, endpoint := range endpoints {
		g.Go(func() error {
			if err := d.DeliverTo(gctx, endpoint, eventType, body); err != nil {
				d.logger.Error("webhook delivery",
					slog.String("tenant_id", tenantID),
					slog.String("endpoint_id", endpoint.ID),
					slog.String("event_type", eventType),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// DeliverTo sends one signed event to a single endpoint and finalises its
// delivery record. The returned error covers record-keeping failures only; a
// rejected or timed-out POST is captured as a FAILED delivery.
func (d *Dispatcher) DeliverTo(ctx context.Context, endpoint Endpoint, eventType string, body []byte) error {
	delivery := Delivery{
		ID:         d.newID(),
		TenantID:   endpoint.TenantID,
		EndpointID: endpoint.ID,
		EventType:  eventType,
		Payload:    body,
		Status:     DeliveryPending,
	}
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}

	status := DeliverySuccess
	if err := d.send(ctx, endpoint, body); err != nil {
		status = DeliveryFailed
		d.metrics.IncWebhookFailure(endpoint.TenantID, eventType)
		d.logger.Warn("webhook send failed",
			slog.String("endpoint_id", endpoint.ID),
			slog.String("url", endpoint.URL),
			slog.Any("error", err),
		)
	}
	if err := d.store.MarkDelivery(ctx, delivery.ID, status, d.now()); err != nil {
		return fmt.Errorf("mark delivery: %w", err)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, endpoint Endpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(body, endpoint.Secret))
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(d.now().UnixMilli(), 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned %s", resp.Status)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature receivers verify against.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
