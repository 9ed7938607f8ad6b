package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cooltrack/cooltrack/internal/app"
	"github.com/cooltrack/cooltrack/internal/auth"
	"github.com/cooltrack/cooltrack/internal/customers"
	"github.com/cooltrack/cooltrack/internal/equipment"
	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/inventory"
	"github.com/cooltrack/cooltrack/internal/jobcost"
	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/observability"
	"github.com/cooltrack/cooltrack/internal/platform/cache"
	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/settings"
	"github.com/cooltrack/cooltrack/internal/shared"
	"github.com/cooltrack/cooltrack/internal/storage"
	"github.com/cooltrack/cooltrack/internal/users"
	"github.com/cooltrack/cooltrack/jobs"
)

func main() {
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

	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UseSSL:       cfg.S3UseSSL,
		UsePathStyle: cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		logger.Error("init object storage", slog.Any("error", err))
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Warn("ensure bucket", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	publisher := events.NewRedisPublisher(redisClient, logger)
	tokens := shared.NewTokenStore(redisClient, cfg.TokenTTL)
	authz := policy.New()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, authz)

	authService := auth.NewService(usersRepo, tokens)
	authHandler := auth.NewHandler(logger, authService)

	settingsService := settings.NewService(settings.NewRepository(pool), logger)
	settingsHandler := settings.NewHandler(logger, settingsService, authz)

	customersRepo := customers.NewRepository(pool)
	customersService := customers.NewService(customersRepo, logger)
	customersHandler := customers.NewHandler(logger, customersService)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), publisher, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, authz)

	equipmentService := equipment.NewService(equipment.NewRepository(pool), publisher, logger)
	equipmentHandler := equipment.NewHandler(logger, equipmentService, authz)

	jobsService := jobcost.NewService(
		jobcost.NewRepository(pool),
		inventoryService,
		equipmentService,
		customersRepo,
		settingsService,
		store,
		publisher,
		authz,
		logger,
	)
	jobsHandler := jobcost.NewHandler(logger, jobsService)

	ledgerHandler := ledger.NewHandler(logger, ledger.NewStore(pool), authz)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	workerHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		CustomersHandler: customersHandler,
		InventoryHandler: inventoryHandler,
		EquipmentHandler: equipmentHandler,
		JobsHandler:      jobsHandler,
		SettingsHandler:  settingsHandler,
		LedgerHandler:    ledgerHandler,
		WorkerHandler:    workerHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
