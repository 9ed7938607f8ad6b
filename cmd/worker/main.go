package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/cooltrack/cooltrack/internal/app"
	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/inventory"
	jobmetrics "github.com/cooltrack/cooltrack/internal/jobs"
	"github.com/cooltrack/cooltrack/internal/platform/cache"
	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
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

	enqueuer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	publisher := events.NewRedisPublisher(redisClient, logger)
	metrics := jobmetrics.NewMetrics(nil)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), publisher, logger)

	mailer := &jobs.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	lowStockJob := jobs.NewLowStockScanJob(
		inventoryService, enqueuer, publisher, cfg.AlertEmail, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(mailer, logger)},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCronSpec, Task: jobs.NewLowStockScanTask(),
				Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
