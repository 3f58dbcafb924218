package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"envelope/internal/amqp"
	"envelope/internal/cache"
	"envelope/internal/cli"
	apphttp "envelope/internal/http"
	"envelope/internal/log"
	"envelope/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	logger.Info("Starting envelope")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	settings, err := cli.BudgetSettings(cfg)
	if err != nil {
		logger.Error("Failed to load budget settings", log.FieldError, err, "path", cfg.BudgetSettingsFile)
		os.Exit(1)
	}
	budget, created, err := cli.OpenBudget(context.Background(), repo, cfg.BudgetName, settings, cli.CurrentMonth(time.Now()))
	if err != nil {
		logger.Error("Failed to open budget", log.FieldError, err, log.FieldBudget, cfg.BudgetName)
		os.Exit(1)
	}
	if created {
		logger.Info("Created new budget", log.FieldBudget, budget.Name())
	} else {
		latest, _ := budget.LatestMonth()
		logger.Info("Budget restored", log.FieldBudget, budget.Name(), log.FieldMonth, latest.String())
	}

	// Events are optional: without a broker the worker relies on its periodic refresh.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - ledger events will not be published")
	}

	svc := services.NewBudgetService(budget, repo, publisher, services.BudgetServiceOptions{
		ReportCacheTTL: cfg.ReportCacheTTL,
		Logger:         logger,
	})

	caches := cache.NewManager()
	caches.Register(svc.ReportCache())

	snapshotter := services.NewSnapshotter(svc, cfg.SnapshotInterval, logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
		Storage:            repo,
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 35 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		// Stop writes the final snapshot.
		if err := snapshotter.Stop(ctx); err != nil {
			logger.Error("Final snapshot failed", log.FieldError, err)
		}
	})

	caches.StartCleanup(ctx, time.Minute)
	if err := snapshotter.Start(ctx); err != nil {
		logger.Error("Failed to start snapshotter", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting HTTP server", "port", cfg.Port, log.FieldBudget, budget.Name())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
