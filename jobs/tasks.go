package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/access"
)

const (
	// QueueDefault is the default queue name for background tasks.
	QueueDefault = "default"
	// QueueCritical carries latency-sensitive evaluation tasks.
	QueueCritical = "critical"

	// TaskAccessEvaluate computes an access decision in the background,
	// serving a cached verdict when one is fresh.
	TaskAccessEvaluate = "access:evaluate"
	// TaskAuditInsert persists one audit record off the request path.
	TaskAuditInsert = "audit:insert"
	// TaskWebhookDispatch fans a tenant event out to subscribed endpoints.
	TaskWebhookDispatch = "webhook:dispatch"
)

// WebhookDispatchPayload carries one tenant event toward the dispatcher.
type WebhookDispatchPayload struct {
	TenantID  string          `json:"tenantId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// NewEvaluateTask packs an evaluation order into an Asynq task.
func NewEvaluateTask(req access.EvaluateRequest) (*asynq.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluate payload: %w", err)
	}
	return asynq.NewTask(TaskAccessEvaluate, data), nil
}

// NewAuditInsertTask packs an audit record into an Asynq task.
func NewAuditInsertTask(rec access.AuditRecord) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return asynq.NewTask(TaskAuditInsert, data), nil
}

// NewWebhookDispatchTask packs a tenant event into an Asynq task.
func NewWebhookDispatchTask(payload WebhookDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	return asynq.NewTask(TaskWebhookDispatch, data), nil
}
