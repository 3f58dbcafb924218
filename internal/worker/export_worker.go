package worker

import (
	"context"
	"errors"
	"fmt"

	"envelope/internal/amqp"
	"envelope/internal/core"
	"envelope/internal/log"
)

// Exporter is the part of the export processor the worker drives.
type Exporter interface {
	ExportNow(ctx context.Context, budget string, month core.MonthKey) (string, error)
	EnqueueFrom(ctx context.Context, budget string, from core.MonthKey) (int, error)
	EnqueueLatest(ctx context.Context) int
}

// ExportWorker turns ledger events into month exports.
type ExportWorker struct {
	exporter Exporter
	logger   *log.Logger
}

func NewExportWorker(exporter Exporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{exporter: exporter, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleEvent exports the month an event touched. Events that can never
// succeed are dropped; other failures are returned so the message is
// redelivered.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldMessageID, ev.ID,
		log.FieldEvent, string(ev.Type),
		log.FieldBudget, ev.Budget,
		log.FieldMonth, ev.Month)

	month, err := core.ParseMonthKey(ev.Month)
	if err != nil {
		w.logger.WarnContext(ctx, "Dropping event with invalid month",
			log.FieldMessageID, ev.ID, log.FieldError, err)
		return nil
	}

	ref, err := w.exporter.ExportNow(ctx, ev.Budget, month)
	switch {
	case errors.Is(err, core.ErrNotFound):
		w.logger.WarnContext(ctx, "Dropping event for unknown budget or month",
			log.FieldMessageID, ev.ID, log.FieldError, err)
		return nil
	case err != nil:
		return fmt.Errorf("export %s %s: %w", ev.Budget, ev.Month, err)
	}

	// A month change also moves the carried-over balances of the months after it.
	if ev.Type == amqp.EventTransactionRecorded || ev.Type == amqp.EventTransactionUpdated ||
		ev.Type == amqp.EventTransactionDeleted || ev.Type == amqp.EventAllocationSet {
		if _, err := w.exporter.EnqueueFrom(ctx, ev.Budget, month.Next()); err != nil {
			w.logger.WarnContext(ctx, "Failed to queue later months",
				log.FieldBudget, ev.Budget, log.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Event exported",
		log.FieldMessageID, ev.ID,
		log.FieldExportRef, ref)
	return nil
}

// StartupExportCheck queues the latest month of every budget so exports
// missed while the worker was down are caught up.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) int {
	n := w.exporter.EnqueueLatest(ctx)
	if n == 0 {
		w.logger.InfoContext(ctx, "No budgets found on startup")
		return 0
	}
	w.logger.InfoContext(ctx, "Queued latest months on startup", "count", n)
	return n
}
