package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-io/gatehouse/internal/access"
	"github.com/gatehouse-io/gatehouse/internal/app"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/platform/cache"
	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/policy"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/webhooks"
	"github.com/gatehouse-io/gatehouse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	appMetrics := observability.NewMetrics()
	taskMetrics := jobmetrics.NewMetrics(nil)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.NewRepository(pool), jobClient)
	policyRepo := policy.NewRepository(pool)
	engine := access.NewEngine(rbacService, policyRepo)
	decisionCache := access.NewDecisionCache(redisClient, cfg.DecisionCacheTTL)
	evaluateJob := jobs.NewEvaluateJob(engine, decisionCache, logger, taskMetrics, appMetrics)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditJob := jobs.NewAuditInsertJob(auditService, logger, taskMetrics, appMetrics)

	webhookRepo := webhooks.NewRepository(pool)
	webhookClient := &http.Client{Timeout: cfg.WebhookTimeout}
	dispatcher := webhooks.NewDispatcher(webhookRepo, webhookClient, appMetrics, logger, nil)
	webhookJob := jobs.NewWebhookDispatchJob(dispatcher, logger, taskMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Metrics:   taskMetrics,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessEvaluate, Handler: evaluateJob.Handle},
			{Type: jobs.TaskAuditInsert, Handler: auditJob.Handle},
			{Type: jobs.TaskWebhookDispatch, Handler: webhookJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
