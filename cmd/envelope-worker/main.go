package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"envelope/internal/amqp"
	"envelope/internal/backend"
	"envelope/internal/cli"
	"envelope/internal/log"
	"envelope/internal/metrics"
	"envelope/internal/services"
	"envelope/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting envelope-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// The worker only reads snapshots written by the API server.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	exporter, err := backend.New(context.Background(), backendCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize export backend", log.FieldError, err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}

	procCfg := services.DefaultExportProcessorConfig()
	procCfg.RefreshInterval = cfg.ExportInterval
	processor := services.NewExportProcessor(repo, exporter, procCfg, logger)
	exportWorker := worker.NewExportWorker(processor, logger)

	var metricsSrv *http.Server
	if cfg.MetricsPort != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Export processor stop failed", log.FieldError, err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
	})

	// Catch up on months that changed while the worker was down.
	logger.Info("Performing startup export check...")
	exportWorker.StartupExportCheck(ctx)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.Consume(ctx, exportWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption failed, relying on periodic refresh", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled - exporting on the periodic refresh only", "interval", cfg.ExportInterval)
	}

	cli.WaitForShutdown(ctx, done)
	stats := processor.Stats()
	logger.Info("Worker shutdown complete", "exported", stats.Exported, "pending", stats.Pending, "failed", stats.Failed)
}
