package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/access"
	"github.com/gatehouse-io/gatehouse/internal/policy"
)

type fakeRoles struct {
	codes map[string]struct{}
	err   error
	panic bool
	calls int
}

func (f *fakeRoles) ResolvePermissionCodes(ctx context.Context, userID, tenantID string) (map[string]struct{}, error) {
	f.calls++
	if f.panic {
		panic("resolver blew up")
	}
	return f.codes, f.err
}

type fakePolicies struct {
	policies []policy.Policy
	err      error
}

func (f *fakePolicies) FindActive(ctx context.Context, tenantID, resource, action string) ([]policy.Policy, error) {
	return f.policies, f.err
}

func newEvaluateHarness(t *testing.T, roles *fakeRoles, policies *fakePolicies) (*EvaluateJob, *access.DecisionCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := access.NewDecisionCache(rdb, access.DefaultDecisionTTL)
	job := NewEvaluateJob(access.NewEngine(roles, policies), cache, nil, nil, nil)
	return job, cache
}

func evaluateTask(t *testing.T, req access.EvaluateRequest) *asynq.Task {
	t.Helper()
	task, err := NewEvaluateTask(req)
	require.NoError(t, err)
	return task
}

func TestEvaluateComputesAndCaches(t *testing.T) {
	roles := &fakeRoles{codes: map[string]struct{}{"documents.read": {}}}
	job, cache := newEvaluateHarness(t, roles, &fakePolicies{})
	req := access.EvaluateRequest{TenantID: "t1", UserID: "u1", Resource: "documents", Action: "read"}

	require.NoError(t, job.Handle(context.Background(), evaluateTask(t, req)))

	cached, ok, err := cache.Get(context.Background(), "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cached.Allowed)
}

func TestEvaluateCacheHitSkipsEngine(t *testing.T) {
	roles := &fakeRoles{codes: map[string]struct{}{}}
	job, cache := newEvaluateHarness(t, roles, &fakePolicies{})
	req := access.EvaluateRequest{TenantID: "t1", UserID: "u1", Resource: "documents", Action: "read"}

	require.NoError(t, cache.Put(context.Background(), "t1", "u1", "documents", "read", access.CachedDecision{Allowed: true}))
	require.NoError(t, job.Handle(context.Background(), evaluateTask(t, req)))
	require.Zero(t, roles.calls, "cached verdict must short-circuit the engine")
}

func TestEvaluateEngineErrorFailsClosed(t *testing.T) {
	roles := &fakeRoles{err: errors.New("db down")}
	job, cache := newEvaluateHarness(t, roles, &fakePolicies{})
	req := access.EvaluateRequest{TenantID: "t1", UserID: "u1", Resource: "documents", Action: "read"}

	require.NoError(t, job.Handle(context.Background(), evaluateTask(t, req)), "evaluation never retries, it denies")

	cached, ok, err := cache.Get(context.Background(), "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, cached.Allowed)
}

func TestEvaluatePanicFailsClosed(t *testing.T) {
	roles := &fakeRoles{panic: true}
	job, cache := newEvaluateHarness(t, roles, &fakePolicies{})
	req := access.EvaluateRequest{TenantID: "t1", UserID: "u1", Resource: "documents", Action: "read"}

	require.NoError(t, job.Handle(context.Background(), evaluateTask(t, req)))

	cached, ok, err := cache.Get(context.Background(), "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, cached.Allowed)
}

func TestEvaluateMalformedPayloadSkipsRetry(t *testing.T) {
	job, _ := newEvaluateHarness(t, &fakeRoles{}, &fakePolicies{})

	err := job.Handle(context.Background(), asynq.NewTask(TaskAccessEvaluate, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditInsertPersistsRecord(t *testing.T) {
	var got []access.AuditRecord
	writer := auditWriterFunc(func(ctx context.Context, rec access.AuditRecord) error {
		got = append(got, rec)
		return nil
	})
	job := NewAuditInsertJob(writer, nil, nil, nil)

	task, err := NewAuditInsertTask(access.AuditRecord{TenantID: "t1", UserID: "u1", Resource: "documents", Action: "read", Allowed: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, got, 1)
	require.Equal(t, "t1", got[0].TenantID)
}

func TestAuditInsertFailureRetries(t *testing.T) {
	boom := errors.New("insert failed")
	writer := auditWriterFunc(func(ctx context.Context, rec access.AuditRecord) error { return boom })
	job := NewAuditInsertJob(writer, nil, nil, nil)

	task, err := NewAuditInsertTask(access.AuditRecord{TenantID: "t1"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestWebhookDispatchForwardsEvent(t *testing.T) {
	var gotTenant, gotType string
	var gotData json.RawMessage
	dispatcher := dispatcherFunc(func(ctx context.Context, tenantID, eventType string, data json.RawMessage) error {
		gotTenant, gotType, gotData = tenantID, eventType, data
		return nil
	})
	job := NewWebhookDispatchJob(dispatcher, nil, nil)

	task, err := NewWebhookDispatchTask(WebhookDispatchPayload{TenantID: "t1", EventType: "policy.updated", Data: json.RawMessage(`{"id":"p1"}`)})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "t1", gotTenant)
	require.Equal(t, "policy.updated", gotType)
	require.JSONEq(t, `{"id":"p1"}`, string(gotData))
}

type auditWriterFunc func(ctx context.Context, rec access.AuditRecord) error

func (f auditWriterFunc) Insert(ctx context.Context, rec access.AuditRecord) error {
	return f(ctx, rec)
}

type dispatcherFunc func(ctx context.Context, tenantID, eventType string, data json.RawMessage) error

func (f dispatcherFunc) Dispatch(ctx context.Context, tenantID, eventType string, data json.RawMessage) error {
	return f(ctx, tenantID, eventType, data)
}
