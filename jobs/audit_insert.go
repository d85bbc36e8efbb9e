package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/access"
	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
	"github.com/gatehouse-io/gatehouse/internal/observability"
)

// AuditWriter persists one evaluation record to the audit trail.
type AuditWriter interface {
	Insert(ctx context.Context, rec access.AuditRecord) error
}

// AuditInsertJob writes audit records off the request path.
type AuditInsertJob struct {
	Writer     AuditWriter
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	AppMetrics *observability.Metrics
}

// NewAuditInsertJob wires dependencies for the audit insert handler.
func NewAuditInsertJob(writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics, appMetrics *observability.Metrics) *AuditInsertJob {
	return &AuditInsertJob{Writer: writer, Logger: logger, Metrics: metrics, AppMetrics: appMetrics}
}

// Handle processes audit:insert tasks. Persistence failures are returned so
// Asynq retries; the record lands once the database recovers.
func (j *AuditInsertJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("audit insert: handler not configured")
	}
	var rec access.AuditRecord
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditInsert)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Writer.Insert(ctx, rec); err != nil {
		resultErr = err
		j.logger().Error("insert audit record",
			slog.String("tenant_id", rec.TenantID),
			slog.Any("error", err),
		)
		return resultErr
	}
	j.AppMetrics.IncAuditLogWritten(rec.TenantID)
	return resultErr
}

func (j *AuditInsertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditInsert))
	}
	return slog.Default().With(slog.String("job", TaskAuditInsert))
}

func (j *AuditInsertJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
