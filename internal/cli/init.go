// Package cli provides common initialization used by cmd/envelope,
// cmd/envelope-worker and cmd/envelopectl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"envelope/internal/config"
	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/log"
	"envelope/internal/storage"
)

// SetupLogger builds a text logger at the given LOG_LEVEL and installs it as
// the slog default. Unknown levels fall back to info with a warning.
func SetupLogger(level, component string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: component,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	}).WithComponent(component)
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Invalid LOG_LEVEL, using info", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// BudgetSettings reads the settings file when one is configured and falls
// back to the USD defaults otherwise.
func BudgetSettings(cfg *config.Config) (core.BudgetSettings, error) {
	if cfg.BudgetSettingsFile == "" {
		return core.DefaultSettings(), nil
	}
	return config.LoadSettings(cfg.BudgetSettingsFile)
}

// OpenBudget restores the named budget from its latest snapshot. When none
// was saved yet a new budget is created with month first opened.
func OpenBudget(ctx context.Context, repo *storage.SQLiteRepository, name string, settings core.BudgetSettings, first core.MonthKey) (b *ledger.Budget, created bool, err error) {
	b, err = repo.LoadBudget(ctx, name)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, storage.ErrNoSnapshot) {
		return nil, false, err
	}

	b, err = ledger.WithName(name, ledger.WithSettings(settings))
	if err != nil {
		return nil, false, err
	}
	if err := b.AdvanceMonth(first); err != nil {
		return nil, false, err
	}
	if err := repo.SaveSnapshot(ctx, b.Snapshot()); err != nil {
		return nil, false, fmt.Errorf("save new budget: %w", err)
	}
	return b, true, nil
}

// CurrentMonth is the month containing now.
func CurrentMonth(now time.Time) core.MonthKey {
	return core.DateOf(now).Month()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
