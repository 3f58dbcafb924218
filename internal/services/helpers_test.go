package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"envelope/internal/amqp"
	"envelope/internal/core"
	"envelope/internal/ledger"
)

var jan = core.NewMonthKey(2024, 1)

type fixture struct {
	budget   *ledger.Budget
	checking core.AccountID
	savings  core.AccountID
	food     core.CategoryID
	grocer   core.PayeeID
}

func newFixture(t *testing.T, name string) fixture {
	t.Helper()
	b, err := ledger.WithName(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.AdvanceMonth(jan); err != nil {
		t.Fatal(err)
	}
	f := fixture{budget: b}
	if f.checking, err = b.AddAccount(ledger.NewAccount{
		Name: "Checking", Kind: core.Checking, OnBudget: true,
		StartingBalance: 100000, Date: core.NewDate(2024, 1, 1),
	}); err != nil {
		t.Fatal(err)
	}
	if f.savings, err = b.AddAccount(ledger.NewAccount{Name: "Savings", Kind: core.Savings, OnBudget: true}); err != nil {
		t.Fatal(err)
	}
	group, err := b.AddCategoryGroup("Everyday")
	if err != nil {
		t.Fatal(err)
	}
	if f.food, err = b.AddCategory(group, "Food"); err != nil {
		t.Fatal(err)
	}
	if f.grocer, err = b.AddPayee("Grocer"); err != nil {
		t.Fatal(err)
	}
	return f
}

type fakeSaver struct {
	mu    sync.Mutex
	err   error
	saves []ledger.Snapshot
}

func (s *fakeSaver) SaveSnapshot(_ context.Context, snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, snap)
	return nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []*amqp.LedgerEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fakeLoader struct {
	mu      sync.Mutex
	budgets map[string]*ledger.Budget
	listErr error
}

func (l *fakeLoader) LoadBudget(_ context.Context, name string) (*ledger.Budget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[name]
	if !ok {
		return nil, fmt.Errorf("budget %q: %w", name, core.ErrNotFound)
	}
	return b, nil
}

func (l *fakeLoader) ListBudgets(context.Context) ([]string, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var names []string
	for n := range l.budgets {
		names = append(names, n)
	}
	return names, nil
}

var errUnavailable = errors.New("sheets unavailable")

func ledgerAccount(name string, balance core.Money) ledger.NewAccount {
	return ledger.NewAccount{
		Name: name, Kind: core.OtherAsset, StartingBalance: balance, Date: core.NewDate(2024, 1, 1),
	}
}
