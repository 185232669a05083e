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

	"github.com/udaykiran1867/tce-project1/internal/app"
	"github.com/udaykiran1867/tce-project1/internal/auth"
	"github.com/udaykiran1867/tce-project1/internal/inventory"
	"github.com/udaykiran1867/tce-project1/internal/observability"
	"github.com/udaykiran1867/tce-project1/internal/platform/cache"
	"github.com/udaykiran1867/tce-project1/internal/platform/db"
	"github.com/udaykiran1867/tce-project1/internal/reporting"
	"github.com/udaykiran1867/tce-project1/internal/shared"
	"github.com/udaykiran1867/tce-project1/jobs"
	"github.com/udaykiran1867/tce-project1/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	loc, _ := cfg.Location()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		shared.NewIdempotencyStore(pool, cfg.IdempotencyClaimTTL),
		reportCache,
		inventory.ServiceConfig{RequireDefectRemark: cfg.DefectRemarkRequired, Location: loc},
		logger,
	)
	reportService := reporting.NewService(reporting.NewRepository(pool), reportCache, loc, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() { _ = jobClient.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	healthChecks := []app.HealthCheck{
		{Name: "postgres", Ping: pool.Ping},
		{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}
	var pdf reporting.PDFRenderer
	if client := report.NewClient(cfg.GotenbergURL, 30*time.Second); client != nil {
		pdf = client
		healthChecks = append(healthChecks, app.HealthCheck{Name: "gotenberg", Ping: client.Ping, Optional: true})
	}

	var verifier *auth.Verifier
	if cfg.AuthEnabled() {
		verifier = auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, logger)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService, jobClient),
		ReportHandler:    reporting.NewHandler(reportService, pdf, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Verifier:         verifier,
		Metrics:          observability.NewMetrics(),
		HealthChecks:     healthChecks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
