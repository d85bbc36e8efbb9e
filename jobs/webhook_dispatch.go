package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
)

// EventDispatcher delivers one tenant event to every subscribed endpoint.
type EventDispatcher interface {
	Dispatch(ctx context.Context, tenantID, eventType string, data json.RawMessage) error
}

// WebhookDispatchJob fans tenant events out to webhook endpoints.
type WebhookDispatchJob struct {
	Dispatcher EventDispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewWebhookDispatchJob wires dependencies for the dispatch handler.
func NewWebhookDispatchJob(dispatcher EventDispatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *WebhookDispatchJob {
	return &WebhookDispatchJob{Dispatcher: dispatcher, Logger: logger, Metrics: metrics}
}

// Handle processes webhook:dispatch tasks. Delivery outcomes per endpoint are
// recorded by the dispatcher itself; only infrastructure failures bubble up
// for a retry.
func (j *WebhookDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dispatcher == nil {
		return errors.New("webhook dispatch: handler not configured")
	}
	var payload WebhookDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskWebhookDispatch)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Dispatcher.Dispatch(ctx, payload.TenantID, payload.EventType, payload.Data); err != nil {
		resultErr = err
		j.logger().Error("dispatch event",
			slog.String("tenant_id", payload.TenantID),
			slog.String("event_type", payload.EventType),
			slog.Any("error", err),
		)
		return resultErr
	}
	return resultErr
}

func (j *WebhookDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskWebhookDispatch))
	}
	return slog.Default().With(slog.String("job", TaskWebhookDispatch))
}

func (j *WebhookDispatchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
