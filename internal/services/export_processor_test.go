package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/sheets"
	"envelope/internal/sheets/memory"
)

type flakyExporter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (e *flakyExporter) ExportMonth(_ context.Context, _ sheets.MonthExport) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "", e.err
}

func newLoader(budgets ...*ledger.Budget) *fakeLoader {
	l := &fakeLoader{budgets: make(map[string]*ledger.Budget)}
	for _, b := range budgets {
		l.budgets[b.Name()] = b
	}
	return l
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.RefreshInterval != time.Hour {
		t.Errorf("expected RefreshInterval 1h, got %v", config.RefreshInterval)
	}

	p := NewExportProcessor(nil, nil, ExportProcessorConfig{BatchSize: 2}, nil)
	if p.config.BatchSize != 2 || p.config.MaxRetries != 3 {
		t.Errorf("zero fields should take defaults, got %+v", p.config)
	}
}

func TestExportProcessor_ExportNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	if _, err := f.budget.RecordTransaction(core.Transaction{
		Date: core.NewDate(2024, 1, 3), Amount: -4500, Account: f.checking, Payee: f.grocer, Category: f.food, Memo: "milk",
	}); err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	p := NewExportProcessor(newLoader(f.budget), store, DefaultExportProcessorConfig(), nil)

	ref, err := p.ExportNow(ctx, "Household", jan)
	if err != nil {
		t.Fatalf("ExportNow: %v", err)
	}
	if ref == "" {
		t.Error("empty export reference")
	}
	ov, err := store.ReadMonthOverview(ctx, "Household", jan)
	if err != nil {
		t.Fatalf("ReadMonthOverview: %v", err)
	}
	if ov.Activity != -4500 {
		t.Errorf("exported activity = %d, want -4500", ov.Activity)
	}
	if p.Stats().Exported != 1 {
		t.Errorf("exported = %d, want 1", p.Stats().Exported)
	}

	if _, err := p.ExportNow(ctx, "Missing", jan); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExportProcessor_CoalescesRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	store := memory.New()
	p := NewExportProcessor(newLoader(f.budget), store, DefaultExportProcessorConfig(), nil)

	p.Enqueue("Household", jan)
	p.Enqueue("Household", jan)
	if got := p.Stats().Pending; got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	if n := p.processBatch(ctx); n != 1 {
		t.Errorf("processed %d, want 1", n)
	}
	if store.Writes() != 1 {
		t.Errorf("writes = %d, want 1", store.Writes())
	}
	if got := p.Stats().Pending; got != 0 {
		t.Errorf("pending after batch = %d", got)
	}
}

func TestExportProcessor_BatchSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	for k := jan.Next(); k < jan+4; k++ {
		if err := f.budget.AdvanceMonth(k); err != nil {
			t.Fatal(err)
		}
	}
	store := memory.New()
	p := NewExportProcessor(newLoader(f.budget), store, ExportProcessorConfig{BatchSize: 3}, nil)
	for k := jan; k < jan+4; k++ {
		p.Enqueue("Household", k)
	}

	if n := p.processBatch(ctx); n != 3 {
		t.Fatalf("first batch = %d, want 3", n)
	}
	// Oldest months go first.
	if _, err := store.ReadMonthOverview(ctx, "Household", jan+3); err == nil {
		t.Error("latest month exported before older ones")
	}
	if n := p.processBatch(ctx); n != 1 {
		t.Errorf("second batch = %d, want 1", n)
	}
}

func TestExportProcessor_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	exp := &flakyExporter{err: errUnavailable}
	p := NewExportProcessor(newLoader(f.budget), exp, ExportProcessorConfig{MaxRetries: 2}, nil)

	p.Enqueue("Household", jan)
	p.processBatch(ctx)
	if s := p.Stats(); s.Pending != 1 || s.Failed != 0 {
		t.Fatalf("after one failure: %+v", s)
	}
	p.processBatch(ctx)
	if s := p.Stats(); s.Pending != 0 || s.Failed != 1 {
		t.Fatalf("after max retries: %+v", s)
	}
	failures := p.Failures()
	if len(failures) != 1 || failures[0].Attempts != 2 || failures[0].Month != jan {
		t.Errorf("failures = %+v", failures)
	}

	exp.mu.Lock()
	exp.err = nil
	exp.mu.Unlock()
	if n := p.RetryFailed(); n != 1 {
		t.Errorf("RetryFailed = %d, want 1", n)
	}
	if n := p.processBatch(ctx); n != 1 {
		t.Errorf("processed %d after retry", n)
	}
	if s := p.Stats(); s.Failed != 0 || s.Pending != 0 {
		t.Errorf("stats after retry: %+v", s)
	}
}

func TestExportProcessor_UnknownMonthFailsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	p := NewExportProcessor(newLoader(f.budget), memory.New(), DefaultExportProcessorConfig(), nil)

	p.Enqueue("Household", jan+6)
	p.processBatch(ctx)
	if s := p.Stats(); s.Failed != 1 || s.Pending != 0 {
		t.Errorf("stats = %+v, want one failure", s)
	}
}

func TestExportProcessor_EnqueueLatest(t *testing.T) {
	ctx := context.Background()
	a := newFixture(t, "Household")
	if err := a.budget.AdvanceMonth(jan.Next()); err != nil {
		t.Fatal(err)
	}
	b := newFixture(t, "Cabin")
	store := memory.New()
	p := NewExportProcessor(newLoader(a.budget, b.budget), store, DefaultExportProcessorConfig(), nil)

	if n := p.EnqueueLatest(ctx); n != 2 {
		t.Fatalf("EnqueueLatest = %d, want 2", n)
	}
	p.processBatch(ctx)
	if _, err := store.ReadMonthOverview(ctx, "Household", jan.Next()); err != nil {
		t.Errorf("Household latest month not exported: %v", err)
	}
	if _, err := store.ReadMonthOverview(ctx, "Cabin", jan); err != nil {
		t.Errorf("Cabin latest month not exported: %v", err)
	}

	broken := NewExportProcessor(&fakeLoader{listErr: errUnavailable}, store, DefaultExportProcessorConfig(), nil)
	if n := broken.EnqueueLatest(ctx); n != 0 {
		t.Errorf("EnqueueLatest with failing loader = %d", n)
	}
}

func TestExportProcessor_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, "Household")
	store := memory.New()
	p := NewExportProcessor(newLoader(f.budget), store, ExportProcessorConfig{PollInterval: 10 * time.Millisecond}, nil)

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if err := p.Stop(ctx); err != nil {
		t.Errorf("Stop on idle processor: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	p.Enqueue("Household", jan)
	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().Exported == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Stats().Exported == 0 {
		t.Error("queued month was never exported")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor still running after Stop")
	}
}

func TestExportProcessor_EnqueueFrom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Household")
	for k := jan.Next(); k < jan+3; k++ {
		if err := f.budget.AdvanceMonth(k); err != nil {
			t.Fatal(err)
		}
	}
	p := NewExportProcessor(newLoader(f.budget), memory.New(), DefaultExportProcessorConfig(), nil)

	n, err := p.EnqueueFrom(ctx, "Household", jan.Next())
	if err != nil {
		t.Fatalf("EnqueueFrom: %v", err)
	}
	if n != 2 || p.Stats().Pending != 2 {
		t.Errorf("queued %d, pending %d, want 2", n, p.Stats().Pending)
	}
	if n, _ := p.EnqueueFrom(ctx, "Household", jan+3); n != 0 {
		t.Errorf("queued %d past the last month", n)
	}
	if _, err := p.EnqueueFrom(ctx, "Missing", jan); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
