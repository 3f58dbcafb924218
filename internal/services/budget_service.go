package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"envelope/internal/amqp"
	"envelope/internal/cache"
	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/log"
	"envelope/internal/metrics"
	"envelope/internal/sheets"
)

// SnapshotSaver persists whole-budget snapshots.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap ledger.Snapshot) error
}

// EventPublisher delivers ledger events to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// BudgetServiceOptions tune the report cache.
type BudgetServiceOptions struct {
	ReportCacheSize int
	ReportCacheTTL  time.Duration
	Logger          *log.Logger
}

// BudgetService orchestrates a budget across its collaborators: reports are
// cached until the next mutation, snapshots are saved by Flush, and every
// month-affecting change is published when a publisher is configured.
type BudgetService struct {
	budget    *ledger.Budget
	saver     SnapshotSaver
	publisher EventPublisher

	reports    *cache.LRUCache[ledger.MonthReport]
	flight     singleflight.Group
	generation atomic.Uint64

	dirty  atomic.Bool
	saveMu sync.Mutex

	logger *log.Logger
	events *log.StructuredLogger
}

// NewBudgetService wraps b. saver and publisher may be nil.
func NewBudgetService(b *ledger.Budget, saver SnapshotSaver, publisher EventPublisher, opts BudgetServiceOptions) *BudgetService {
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = 24
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentLedger)
	s := &BudgetService{
		budget:    b,
		saver:     saver,
		publisher: publisher,
		reports:   cache.NewLRUCache[ledger.MonthReport](opts.ReportCacheSize, opts.ReportCacheTTL),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
	s.updateGauges()
	return s
}

// Budget exposes the ledger for reads. Mutations must go through the service
// so caches, snapshots and events stay in step.
func (s *BudgetService) Budget() *ledger.Budget {
	return s.budget
}

// ReportCache is registered with the cache manager for periodic expiry.
func (s *BudgetService) ReportCache() *cache.LRUCache[ledger.MonthReport] {
	return s.reports
}

func (s *BudgetService) mutate(ctx context.Context, op string, fn func() error, evs ...*amqp.LedgerEvent) error {
	err := fn()
	metrics.LedgerOperations.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		s.logger.DebugContext(ctx, "Ledger operation rejected", log.FieldOperation, op, log.FieldError, err)
		return err
	}
	s.generation.Add(1)
	s.reports.Purge()
	s.dirty.Store(true)
	s.updateGauges()
	for _, ev := range evs {
		s.publish(ctx, ev)
	}
	return nil
}

func (s *BudgetService) event(typ amqp.EventType, month core.MonthKey) *amqp.LedgerEvent {
	return amqp.NewLedgerEvent(typ, s.budget.Name(), month.String())
}

func (s *BudgetService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil || ev == nil {
		return
	}
	// Consumers read the persisted budget, so it must be saved first.
	if err := s.Flush(ctx); err != nil {
		s.events.LogError(ctx, "Failed to save snapshot before publishing", err, log.ComponentStorage, log.OpSnapshot, nil)
	}
	err := s.publisher.Publish(ctx, ev)
	metrics.EventsPublished.WithLabelValues(string(ev.Type), metrics.Result(err)).Inc()
	if err != nil {
		// The ledger change stands; the worker's periodic refresh catches up.
		s.events.LogError(ctx, "Failed to publish ledger event", err, log.ComponentAMQP, log.OpCreate,
			log.NewFields().WithOperation(string(ev.Type)))
	}
}

func (s *BudgetService) updateGauges() {
	latest, ok := s.budget.LatestMonth()
	if !ok {
		return
	}
	if m, err := s.budget.Month(latest); err == nil {
		metrics.ToBeBudgeted.WithLabelValues(s.budget.Name()).Set(float64(m.ToBeBudgeted))
	}
}

// SetSettings replaces the budget display settings.
func (s *BudgetService) SetSettings(ctx context.Context, st core.BudgetSettings) error {
	return s.mutate(ctx, "set_settings", func() error { return s.budget.SetSettings(st) })
}

func (s *BudgetService) AddAccount(ctx context.Context, na ledger.NewAccount) (core.AccountID, error) {
	var id core.AccountID
	var evs []*amqp.LedgerEvent
	if na.StartingBalance != 0 {
		evs = append(evs, s.event(amqp.EventTransactionRecorded, na.Date.Month()))
	}
	err := s.mutate(ctx, "add_account", func() (err error) {
		id, err = s.budget.AddAccount(na)
		return err
	}, evs...)
	return id, err
}

func (s *BudgetService) CloseAccount(ctx context.Context, id core.AccountID) error {
	return s.mutate(ctx, "close_account", func() error { return s.budget.CloseAccount(id) })
}

func (s *BudgetService) ReopenAccount(ctx context.Context, id core.AccountID) error {
	return s.mutate(ctx, "reopen_account", func() error { return s.budget.ReopenAccount(id) })
}

func (s *BudgetService) DeleteAccount(ctx context.Context, id core.AccountID) error {
	return s.mutate(ctx, "delete_account", func() error { return s.budget.DeleteAccount(id) })
}

func (s *BudgetService) AddPayee(ctx context.Context, name string) (core.PayeeID, error) {
	var id core.PayeeID
	err := s.mutate(ctx, "add_payee", func() (err error) {
		id, err = s.budget.AddPayee(name)
		return err
	})
	return id, err
}

func (s *BudgetService) DeletePayee(ctx context.Context, id core.PayeeID) error {
	return s.mutate(ctx, "delete_payee", func() error { return s.budget.DeletePayee(id) })
}

func (s *BudgetService) AddCategoryGroup(ctx context.Context, name string) (core.CategoryGroupID, error) {
	var id core.CategoryGroupID
	err := s.mutate(ctx, "add_category_group", func() (err error) {
		id, err = s.budget.AddCategoryGroup(name)
		return err
	})
	return id, err
}

func (s *BudgetService) DeleteCategoryGroup(ctx context.Context, id core.CategoryGroupID) error {
	return s.mutate(ctx, "delete_category_group", func() error { return s.budget.DeleteCategoryGroup(id) })
}

func (s *BudgetService) AddCategory(ctx context.Context, group core.CategoryGroupID, name string) (core.CategoryID, error) {
	var id core.CategoryID
	err := s.mutate(ctx, "add_category", func() (err error) {
		id, err = s.budget.AddCategory(group, name)
		return err
	})
	return id, err
}

func (s *BudgetService) DeleteCategory(ctx context.Context, id core.CategoryID) error {
	return s.mutate(ctx, "delete_category", func() error { return s.budget.DeleteCategory(id) })
}

func (s *BudgetService) HideCategory(ctx context.Context, id core.CategoryID, hidden bool) error {
	return s.mutate(ctx, "hide_category", func() error { return s.budget.HideCategory(id, hidden) })
}

func (s *BudgetService) SetCategoryNote(ctx context.Context, id core.CategoryID, note string) error {
	return s.mutate(ctx, "set_category_note", func() error { return s.budget.SetCategoryNote(id, note) })
}

func (s *BudgetService) SetGoal(ctx context.Context, id core.CategoryID, g core.Goal) error {
	return s.mutate(ctx, "set_goal", func() error { return s.budget.SetGoal(id, g) })
}

func (s *BudgetService) ClearGoal(ctx context.Context, id core.CategoryID) error {
	return s.mutate(ctx, "clear_goal", func() error { return s.budget.ClearGoal(id) })
}

// AdvanceMonth opens the month after the latest one and announces it.
func (s *BudgetService) AdvanceMonth(ctx context.Context, key core.MonthKey) error {
	err := s.mutate(ctx, "advance_month", func() error { return s.budget.AdvanceMonth(key) },
		s.event(amqp.EventMonthAdvanced, key))
	if err == nil {
		s.logger.InfoContext(ctx, "Month added", log.FieldMonth, key.String(), log.FieldOperation, log.OpAdvance)
	}
	return err
}

func (s *BudgetService) SetMonthNote(ctx context.Context, key core.MonthKey, note string) error {
	return s.mutate(ctx, "set_month_note", func() error { return s.budget.SetMonthNote(key, note) })
}

func (s *BudgetService) SetBudgeted(ctx context.Context, id core.CategoryID, key core.MonthKey, amount core.Money) error {
	ev := s.event(amqp.EventAllocationSet, key)
	ev.CategoryID, ev.AmountMilli = int64(id), amount.Milliunits()
	err := s.mutate(ctx, "set_budgeted", func() error { return s.budget.SetCategoryBudgeted(id, key, amount) }, ev)
	if err == nil {
		s.events.LogAllocation(ctx, int64(id), key.String(), amount.Milliunits())
	}
	return err
}

func (s *BudgetService) txEvent(typ amqp.EventType, t core.Transaction) *amqp.LedgerEvent {
	ev := s.event(typ, t.Date.Month())
	ev.TransactionID, ev.AccountID, ev.CategoryID, ev.AmountMilli = int64(t.ID), int64(t.Account), int64(t.Category), t.Amount.Milliunits()
	return ev
}

func (s *BudgetService) RecordTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var posted core.Transaction
	err := s.mutate(ctx, "record_transaction", func() (err error) {
		posted, err = s.budget.RecordTransaction(tx)
		return err
	})
	if err != nil {
		return posted, err
	}
	s.publish(ctx, s.txEvent(amqp.EventTransactionRecorded, posted))
	s.events.LogTransactionRecorded(ctx, int64(posted.ID), int64(posted.Account), posted.Amount.Milliunits())
	return posted, nil
}

func (s *BudgetService) UpdateTransaction(ctx context.Context, id core.TransactionID, tx core.Transaction) (core.Transaction, error) {
	old, err := s.budget.Transaction(id, ledger.ActiveOnly)
	if err != nil {
		return core.Transaction{}, err
	}
	var posted core.Transaction
	err = s.mutate(ctx, "update_transaction", func() (err error) {
		posted, err = s.budget.UpdateTransaction(id, tx)
		return err
	})
	if err != nil {
		return posted, err
	}
	s.publish(ctx, s.txEvent(amqp.EventTransactionUpdated, posted))
	if old.Date.Month() != posted.Date.Month() {
		s.publish(ctx, s.txEvent(amqp.EventTransactionUpdated, old))
	}
	return posted, nil
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, id core.TransactionID) error {
	old, err := s.budget.Transaction(id, ledger.ActiveOnly)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "delete_transaction", func() error { return s.budget.DeleteTransaction(id) },
		s.txEvent(amqp.EventTransactionDeleted, old))
}

func (s *BudgetService) ApproveTransaction(ctx context.Context, id core.TransactionID, approved bool) error {
	return s.mutate(ctx, "approve_transaction", func() error { return s.budget.ApproveTransaction(id, approved) })
}

func (s *BudgetService) Reconcile(ctx context.Context, id core.AccountID) (int, error) {
	var n int
	var evs []*amqp.LedgerEvent
	if latest, ok := s.budget.LatestMonth(); ok {
		ev := s.event(amqp.EventAccountReconciled, latest)
		ev.AccountID = int64(id)
		evs = append(evs, ev)
	}
	err := s.mutate(ctx, "reconcile", func() (err error) {
		n, err = s.budget.Reconcile(id)
		return err
	}, evs...)
	return n, err
}

// MonthReport returns the cached report for key or builds it once for all
// concurrent callers. The result is shared and must not be modified.
func (s *BudgetService) MonthReport(ctx context.Context, key core.MonthKey) (ledger.MonthReport, error) {
	gen := s.generation.Load()
	ck := fmt.Sprintf("%d/%s", gen, key)
	if r, ok := s.reports.Get(ck); ok {
		metrics.ReportCacheLookups.WithLabelValues("hit").Inc()
		return r, nil
	}

	v, err, shared := s.flight.Do(ck, func() (any, error) {
		start := time.Now()
		r, err := s.budget.MonthReport(key)
		metrics.ReportDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return ledger.MonthReport{}, err
		}
		// A mutation during the build makes the report stale for the new generation.
		if s.generation.Load() == gen {
			s.reports.Set(ck, r)
		}
		if latest, ok := s.budget.LatestMonth(); ok && latest == key && r.AgeOfMoney != nil {
			metrics.AgeOfMoneyDays.WithLabelValues(s.budget.Name()).Set(float64(*r.AgeOfMoney))
		}
		return r, nil
	})
	if shared {
		metrics.ReportCacheLookups.WithLabelValues("shared").Inc()
	} else {
		metrics.ReportCacheLookups.WithLabelValues("miss").Inc()
	}
	if err != nil {
		return ledger.MonthReport{}, err
	}
	return v.(ledger.MonthReport), nil
}

// Dashboard is the month report with account totals alongside.
type Dashboard struct {
	Report   ledger.MonthReport
	Accounts []core.Account
	Months   []core.Month
	// OnBudget sums active on-budget account balances; NetWorth sums all of them.
	OnBudget core.Money
	NetWorth core.Money
}

// Dashboard assembles the month report and account summary concurrently.
func (s *BudgetService) Dashboard(ctx context.Context, key core.MonthKey) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.MonthReport(gctx, key)
		d.Report = r
		return err
	})
	g.Go(func() error {
		d.Accounts = s.budget.Accounts(ledger.ActiveOnly)
		for _, a := range d.Accounts {
			d.NetWorth += a.Balance
			if a.OnBudget {
				d.OnBudget += a.Balance
			}
		}
		return nil
	})
	g.Go(func() error {
		d.Months = s.budget.Months()
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// MonthExport builds the export payload for a month.
func (s *BudgetService) MonthExport(ctx context.Context, key core.MonthKey) (sheets.MonthExport, error) {
	return BuildMonthExport(s.budget, key)
}

// Dirty reports whether there are changes not yet saved.
func (s *BudgetService) Dirty() bool {
	return s.dirty.Load()
}

// Flush saves a snapshot if anything changed since the last save.
func (s *BudgetService) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.saver == nil || !s.dirty.Swap(false) {
		return nil
	}
	snap := s.budget.Snapshot()
	err := s.saver.SaveSnapshot(ctx, snap)
	metrics.SnapshotsSaved.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.DebugContext(ctx, "Snapshot saved", log.FieldOperation, log.OpSnapshot, "transactions", len(snap.Transactions))
	return nil
}

// Verify recomputes the budget from scratch and compares.
func (s *BudgetService) Verify(ctx context.Context) error {
	err := s.budget.Verify()
	if err != nil {
		s.events.LogError(ctx, "Budget verification failed", err, log.ComponentLedger, log.OpVerify, nil)
	}
	return err
}
