package ledger

import (
	"fmt"
	"sync"

	"envelope/internal/core"
)

// Budget is the root owner of a ledger. Every mutation takes the write lock
// and either applies completely or returns an error with no state change.
// Reads take the read lock and return copies.
type Budget struct {
	mu       sync.RWMutex
	name     string
	settings core.BudgetSettings
	store    *Store
}

// Option configures a Budget at creation.
type Option func(*Budget)

// WithSettings overrides the default display settings.
func WithSettings(s core.BudgetSettings) Option {
	return func(b *Budget) {
		b.settings = s
	}
}

// WithName creates an empty budget.
func WithName(name string, opts ...Option) (*Budget, error) {
	if err := core.ValidateName(name); err != nil {
		return nil, fmt.Errorf("budget name: %w", err)
	}
	b := &Budget{
		name:     name,
		settings: core.DefaultSettings(),
		store:    NewStore(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.settings.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Name returns the budget name.
func (b *Budget) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Settings returns the display settings.
func (b *Budget) Settings() core.BudgetSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// SetSettings replaces the display settings.
func (b *Budget) SetSettings(s core.BudgetSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = s
	return nil
}

// NewAccount describes an account to open.
type NewAccount struct {
	Name     string
	Kind     core.AccountKind
	OnBudget bool
	Note     string
	// StartingBalance is recorded as a cleared transaction dated Date.
	StartingBalance core.Money
	Date            core.Date
}

// AddAccount opens an account. A non-zero starting balance is recorded as a
// cleared transaction from the starting balance payee, categorized as inflow
// for on-budget accounts. The account is not created if that transaction
// would fail.
func (b *Budget) AddAccount(na NewAccount) (core.AccountID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.store
	if na.StartingBalance != 0 {
		if err := na.Date.Validate(); err != nil {
			return 0, fmt.Errorf("starting balance: %w", err)
		}
		if _, ok := s.monthIndex(na.Date.Month()); na.OnBudget && !ok {
			return 0, fmt.Errorf("starting balance month %s: %w", na.Date.Month(), core.ErrNotFound)
		}
	}
	id, err := s.AddAccount(na.Name, na.Kind, na.OnBudget, na.Note)
	if err != nil {
		return 0, err
	}
	if na.StartingBalance == 0 {
		return id, nil
	}
	tx := core.Transaction{
		Date:     na.Date,
		Amount:   na.StartingBalance,
		Account:  id,
		Payee:    s.startingBalance,
		Cleared:  core.Cleared,
		Approved: true,
	}
	if na.OnBudget {
		tx.Category = s.inflow
	}
	if _, err := s.Record(tx); err != nil {
		s.dropLastAccount(id)
		return 0, err
	}
	return id, nil
}

// CloseAccount closes an account to new transactions.
func (b *Budget) CloseAccount(id core.AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.CloseAccount(id)
}

// ReopenAccount reopens a closed account.
func (b *Budget) ReopenAccount(id core.AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.ReopenAccount(id)
}

// DeleteAccount soft-deletes an account.
func (b *Budget) DeleteAccount(id core.AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.DeleteAccount(id)
}

// AddPayee creates a payee.
func (b *Budget) AddPayee(name string) (core.PayeeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.AddPayee(name)
}

// DeletePayee soft-deletes a payee.
func (b *Budget) DeletePayee(id core.PayeeID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.DeletePayee(id)
}

// AddCategoryGroup creates a category group.
func (b *Budget) AddCategoryGroup(name string) (core.CategoryGroupID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.AddCategoryGroup(name)
}

// DeleteCategoryGroup soft-deletes a group and its categories.
func (b *Budget) DeleteCategoryGroup(id core.CategoryGroupID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.DeleteCategoryGroup(id)
}

// AddCategory creates a category in a group.
func (b *Budget) AddCategory(group core.CategoryGroupID, name string) (core.CategoryID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.AddCategory(group, name)
}

// DeleteCategory soft-deletes a category.
func (b *Budget) DeleteCategory(id core.CategoryID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.DeleteCategory(id)
}

// HideCategory hides or shows a category.
func (b *Budget) HideCategory(id core.CategoryID, hidden bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.HideCategory(id, hidden)
}

// SetCategoryNote replaces a category note.
func (b *Budget) SetCategoryNote(id core.CategoryID, note string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.SetCategoryNote(id, note)
}

// SetMonthNote replaces a month note.
func (b *Budget) SetMonthNote(key core.MonthKey, note string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.SetMonthNote(key, note)
}

// AdvanceMonth creates the month after the latest one.
func (b *Budget) AdvanceMonth(key core.MonthKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.AdvanceToMonth(key)
}

// SetCategoryBudgeted sets a category's allocation for a month.
func (b *Budget) SetCategoryBudgeted(id core.CategoryID, key core.MonthKey, amount core.Money) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.SetBudgeted(id, key, amount)
}

// RecordTransaction validates tx, applies it and stores it. The returned
// transaction carries its identifier and resolved transfer fields.
func (b *Budget) RecordTransaction(tx core.Transaction) (core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Record(tx)
}

// UpdateTransaction replaces a posted transaction, reversing the old effects
// and applying the new ones in one step.
func (b *Budget) UpdateTransaction(id core.TransactionID, tx core.Transaction) (core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Replace(id, tx)
}

// DeleteTransaction reverses and soft-deletes a transaction.
func (b *Budget) DeleteTransaction(id core.TransactionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Remove(id)
}

// ApproveTransaction sets the approved flag.
func (b *Budget) ApproveTransaction(id core.TransactionID, approved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.SetApproved(id, approved)
}

// Reconcile marks the account's cleared transactions reconciled.
func (b *Budget) Reconcile(id core.AccountID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Reconcile(id)
}

// SetGoal attaches or updates a category goal. A goal's kind cannot change;
// clear it first. A zero CreationMonth defaults to the latest month.
func (b *Budget) SetGoal(id core.CategoryID, g core.Goal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.store
	c, err := s.category(id, ActiveOnly)
	if err != nil {
		return err
	}
	if id == s.inflow {
		return fmt.Errorf("%w: the inflow category cannot have a goal", core.ErrInvalidGoal)
	}
	if c.Goal != nil && c.Goal.Kind != g.Kind {
		return fmt.Errorf("%w: category %d already has a %s goal", core.ErrInvalidGoal, id, c.Goal.Kind)
	}
	if g.CreationMonth == 0 {
		if c.Goal != nil {
			g.CreationMonth = c.Goal.CreationMonth
		} else if latest, ok := s.LatestMonth(); ok {
			g.CreationMonth = latest
		}
	}
	if err := g.Validate(); err != nil {
		return err
	}
	c.Goal = &g
	return nil
}

// ClearGoal removes a category goal.
func (b *Budget) ClearGoal(id core.CategoryID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.store.category(id, ActiveOnly)
	if err != nil {
		return err
	}
	c.Goal = nil
	return nil
}

// InflowCategory returns the "Inflow: To Be Budgeted" category.
func (b *Budget) InflowCategory() core.CategoryID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.InflowCategory()
}

func (b *Budget) Account(id core.AccountID, v View) (core.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Account(id, v)
}

func (b *Budget) Accounts(v View) []core.Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Accounts(v)
}

func (b *Budget) Payee(id core.PayeeID, v View) (core.Payee, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Payee(id, v)
}

func (b *Budget) Payees(v View) []core.Payee {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Payees(v)
}

func (b *Budget) CategoryGroup(id core.CategoryGroupID, v View) (core.CategoryGroup, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.CategoryGroup(id, v)
}

func (b *Budget) CategoryGroups(v View) []core.CategoryGroup {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.CategoryGroups(v)
}

func (b *Budget) Category(id core.CategoryID, v View) (core.Category, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Category(id, v)
}

func (b *Budget) Categories(v View) []core.Category {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Categories(v)
}

func (b *Budget) CategoryMonth(id core.CategoryID, key core.MonthKey) (core.CategoryMonth, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.CategoryMonth(id, key)
}

func (b *Budget) Month(key core.MonthKey) (core.Month, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Month(key)
}

func (b *Budget) Months() []core.Month {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Months()
}

// LatestMonth returns the most recent month, if any.
func (b *Budget) LatestMonth() (core.MonthKey, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.LatestMonth()
}

func (b *Budget) Transaction(id core.TransactionID, v View) (core.Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Transaction(id, v)
}

func (b *Budget) Transactions(f TransactionFilter) []core.Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Transactions(f)
}

// History returns an immutable copy of the cleared money flows so age of
// money can be computed without holding the lock.
func (b *Budget) History() History {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.History()
}

// Verify checks the ledger invariants and that a full recomputation from
// history reproduces the incrementally maintained amounts.
func (b *Budget) Verify() error {
	b.mu.RLock()
	snap := b.snapshot()
	err := b.store.Verify()
	b.mu.RUnlock()
	if err != nil {
		return err
	}
	rebuilt, err := Restore(snap)
	if err != nil {
		return err
	}
	return diffDerived(snap, rebuilt.Snapshot())
}
