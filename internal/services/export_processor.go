package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/log"
	"envelope/internal/metrics"
	"envelope/internal/sheets"
)

// BudgetLoader reads persisted budgets.
type BudgetLoader interface {
	LoadBudget(ctx context.Context, name string) (*ledger.Budget, error)
	ListBudgets(ctx context.Context) ([]string, error)
}

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often pending months are exported (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of months exported per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before a month is marked failed (default: 3)
	MaxRetries int

	// RefreshInterval re-queues the latest month of every budget (default: 1h)
	RefreshInterval time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		RefreshInterval: time.Hour,
	}
}

// ExportKey identifies one month of one budget.
type ExportKey struct {
	Budget string
	Month  core.MonthKey
}

func (k ExportKey) String() string {
	return k.Budget + "/" + k.Month.String()
}

// ExportFailure is a month that ran out of retries.
type ExportFailure struct {
	ExportKey
	Attempts int
	LastErr  string
}

// ExportStats is a point-in-time view of the queue.
type ExportStats struct {
	Pending  int
	Failed   int
	Exported int64
}

// ExportProcessor coalesces export requests per month and writes them to the
// exporter on a timer. Months requested again while pending are written once.
type ExportProcessor struct {
	loader   BudgetLoader
	exporter sheets.MonthExporter
	config   ExportProcessorConfig
	logger   *log.Logger

	qmu      sync.Mutex
	pending  map[ExportKey]int
	failed   map[ExportKey]ExportFailure
	exported int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates a new export processor. Zero config fields take
// their defaults.
func NewExportProcessor(loader BudgetLoader, exporter sheets.MonthExporter, config ExportProcessorConfig, logger *log.Logger) *ExportProcessor {
	def := DefaultExportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportProcessor{
		loader:   loader,
		exporter: exporter,
		config:   config,
		logger:   logger.WithComponent(log.ComponentSheets),
		pending:  make(map[ExportKey]int),
		failed:   make(map[ExportKey]ExportFailure),
	}
}

// Enqueue schedules a month for export. A previously failed month starts over.
func (p *ExportProcessor) Enqueue(budget string, month core.MonthKey) {
	k := ExportKey{Budget: budget, Month: month}
	p.qmu.Lock()
	defer p.qmu.Unlock()
	delete(p.failed, k)
	if _, ok := p.pending[k]; !ok {
		p.pending[k] = 0
	}
	metrics.ExportQueueDepth.Set(float64(len(p.pending)))
}

// EnqueueFrom schedules every existing month of budget from the given month on.
func (p *ExportProcessor) EnqueueFrom(ctx context.Context, budget string, from core.MonthKey) (int, error) {
	b, err := p.loader.LoadBudget(ctx, budget)
	if err != nil {
		return 0, fmt.Errorf("load budget %q: %w", budget, err)
	}
	n := 0
	for _, m := range b.Months() {
		if m.Month >= from {
			p.Enqueue(budget, m.Month)
			n++
		}
	}
	return n, nil
}

// ExportNow loads the budget and writes the month immediately, bypassing
// the queue.
func (p *ExportProcessor) ExportNow(ctx context.Context, budget string, month core.MonthKey) (string, error) {
	b, err := p.loader.LoadBudget(ctx, budget)
	if err != nil {
		return "", fmt.Errorf("load budget %q: %w", budget, err)
	}
	return p.export(ctx, b, month)
}

func (p *ExportProcessor) export(ctx context.Context, b *ledger.Budget, month core.MonthKey) (string, error) {
	e, err := BuildMonthExport(b, month)
	if err != nil {
		metrics.Exports.WithLabelValues(metrics.Result(err)).Inc()
		return "", err
	}
	ref, err := p.exporter.ExportMonth(ctx, e)
	metrics.Exports.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("export %s %s: %w", b.Name(), month, err)
	}
	p.qmu.Lock()
	p.exported++
	p.qmu.Unlock()
	p.logger.InfoContext(ctx, "Month exported",
		log.FieldBudget, b.Name(),
		log.FieldMonth, month.String(),
		log.FieldExportRef, ref)
	return ref, nil
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	refreshTicker := time.NewTicker(p.config.RefreshInterval)
	defer refreshTicker.Stop()

	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-refreshTicker.C:
			p.EnqueueLatest(ctx)
			p.processBatch(ctx)
		}
	}
}

// EnqueueLatest queues the latest month of every stored budget.
func (p *ExportProcessor) EnqueueLatest(ctx context.Context) int {
	names, err := p.loader.ListBudgets(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list budgets", log.FieldError, err)
		return 0
	}
	n := 0
	for _, name := range names {
		b, err := p.loader.LoadBudget(ctx, name)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to load budget", log.FieldBudget, name, log.FieldError, err)
			continue
		}
		if latest, ok := b.LatestMonth(); ok {
			p.Enqueue(name, latest)
			n++
		}
	}
	return n
}

// next takes up to BatchSize pending keys, oldest month first.
func (p *ExportProcessor) next() []ExportKey {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	keys := make([]ExportKey, 0, len(p.pending))
	for k := range p.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Budget != keys[j].Budget {
			return keys[i].Budget < keys[j].Budget
		}
		return keys[i].Month < keys[j].Month
	})
	if len(keys) > p.config.BatchSize {
		keys = keys[:p.config.BatchSize]
	}
	return keys
}

// processBatch exports a single batch of pending months. Each budget is
// loaded once per batch.
func (p *ExportProcessor) processBatch(ctx context.Context) int {
	keys := p.next()
	if len(keys) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Processing export batch", "count", len(keys))

	loaded := make(map[string]*ledger.Budget)
	done := 0
	for _, k := range keys {
		select {
		case <-p.stopCh:
			return done
		case <-ctx.Done():
			return done
		default:
		}

		b, ok := loaded[k.Budget]
		var err error
		if !ok {
			b, err = p.loader.LoadBudget(ctx, k.Budget)
			if err == nil {
				loaded[k.Budget] = b
			}
		}
		if err == nil {
			_, err = p.export(ctx, b, k.Month)
		}
		if err != nil {
			p.handleFailure(ctx, k, err)
			continue
		}
		p.qmu.Lock()
		delete(p.pending, k)
		p.qmu.Unlock()
		done++
	}

	p.qmu.Lock()
	metrics.ExportQueueDepth.Set(float64(len(p.pending)))
	p.qmu.Unlock()
	return done
}

// handleFailure counts an attempt and gives up after MaxRetries. A month
// that does not exist in the budget fails at once.
func (p *ExportProcessor) handleFailure(ctx context.Context, k ExportKey, err error) {
	p.qmu.Lock()
	defer p.qmu.Unlock()

	attempts, ok := p.pending[k]
	if !ok {
		return
	}
	attempts++
	p.logger.WarnContext(ctx, "Export failed",
		log.FieldBudget, k.Budget,
		log.FieldMonth, k.Month.String(),
		"attempt", attempts,
		log.FieldError, err)

	if attempts >= p.config.MaxRetries || errors.Is(err, core.ErrNotFound) {
		delete(p.pending, k)
		p.failed[k] = ExportFailure{ExportKey: k, Attempts: attempts, LastErr: err.Error()}
		p.logger.ErrorContext(ctx, "Export failed permanently",
			log.FieldBudget, k.Budget,
			log.FieldMonth, k.Month.String(),
			"attempts", attempts)
		return
	}
	p.pending[k] = attempts
}

// Stats returns current queue statistics
func (p *ExportProcessor) Stats() ExportStats {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return ExportStats{Pending: len(p.pending), Failed: len(p.failed), Exported: p.exported}
}

// Failures lists months that ran out of retries.
func (p *ExportProcessor) Failures() []ExportFailure {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	out := make([]ExportFailure, 0, len(p.failed))
	for _, f := range p.failed {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RetryFailed moves all failed months back to pending.
func (p *ExportProcessor) RetryFailed() int {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	n := len(p.failed)
	for k := range p.failed {
		p.pending[k] = 0
	}
	p.failed = make(map[ExportKey]ExportFailure)
	metrics.ExportQueueDepth.Set(float64(len(p.pending)))
	return n
}
