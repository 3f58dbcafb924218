package ledger

import (
	"errors"
	"fmt"

	"envelope/internal/core"
)

// ErrCorruptSnapshot is returned by Restore when a snapshot is not internally
// consistent. The budget cannot be loaded from it.
var ErrCorruptSnapshot = errors.New("cannot load snapshot")

// NextIDs are the identifiers the next add operation of each kind will issue.
type NextIDs struct {
	Account       core.AccountID
	Payee         core.PayeeID
	CategoryGroup core.CategoryGroupID
	Category      core.CategoryID
	Transaction   core.TransactionID
}

// Allocation is a non-zero budgeted amount for a category in a month.
type Allocation struct {
	Category core.CategoryID
	Month    core.MonthKey
	Amount   core.Money
}

// Snapshot is the complete state of a budget. Allocations and transactions
// are the source of truth; balances, month totals and CategoryMonths are
// derived and only informational for Restore.
type Snapshot struct {
	Name                 string
	Settings             core.BudgetSettings
	Accounts             []core.Account
	Payees               []core.Payee
	CategoryGroups       []core.CategoryGroup
	Categories           []core.Category
	Months               []core.Month
	Allocations          []Allocation
	Transactions         []core.Transaction
	CategoryMonths       []core.CategoryMonth
	InflowCategory       core.CategoryID
	StartingBalancePayee core.PayeeID
	NextIDs              NextIDs
}

// Snapshot returns a deep copy of the budget state.
func (b *Budget) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot()
}

func (b *Budget) snapshot() Snapshot {
	s := b.store
	snap := Snapshot{
		Name:                 b.name,
		Settings:             b.settings,
		Accounts:             s.Accounts(IncludeDeleted),
		Payees:               s.Payees(IncludeDeleted),
		CategoryGroups:       s.CategoryGroups(IncludeDeleted),
		Categories:           s.Categories(IncludeDeleted),
		Months:               s.Months(),
		Transactions:         append([]core.Transaction(nil), s.transactions...),
		InflowCategory:       s.inflow,
		StartingBalancePayee: s.startingBalance,
		NextIDs: NextIDs{
			Account:       core.AccountID(len(s.accounts) + 1),
			Payee:         core.PayeeID(len(s.payees) + 1),
			CategoryGroup: core.CategoryGroupID(len(s.groups) + 1),
			Category:      core.CategoryID(len(s.categories) + 1),
			Transaction:   core.TransactionID(len(s.transactions) + 1),
		},
	}
	for _, m := range s.months {
		for _, cm := range m.categories {
			snap.CategoryMonths = append(snap.CategoryMonths, cm)
			if cm.Budgeted != 0 {
				snap.Allocations = append(snap.Allocations, Allocation{Category: cm.Category, Month: cm.Month, Amount: cm.Budgeted})
			}
		}
	}
	return snap
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// Restore rebuilds a budget from a snapshot and recomputes every derived
// amount from its allocations and transactions.
func Restore(snap Snapshot) (*Budget, error) {
	if err := core.ValidateName(snap.Name); err != nil {
		return nil, corrupt("budget name: %v", err)
	}
	if err := snap.Settings.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}
	if err := checkNextIDs(snap); err != nil {
		return nil, err
	}

	s := &Store{
		accounts:     make([]core.Account, len(snap.Accounts)),
		payees:       make([]core.Payee, len(snap.Payees)),
		groups:       make([]core.CategoryGroup, len(snap.CategoryGroups)),
		categories:   make([]core.Category, len(snap.Categories)),
		transactions: make([]core.Transaction, len(snap.Transactions)),
	}
	for i, a := range snap.Accounts {
		if a.ID != core.AccountID(i+1) {
			return nil, corrupt("account at position %d has id %d", i, a.ID)
		}
		a.Balance, a.ClearedBalance, a.UnclearedBalance = 0, 0, 0
		s.accounts[i] = a
	}
	for i, p := range snap.Payees {
		if p.ID != core.PayeeID(i+1) {
			return nil, corrupt("payee at position %d has id %d", i, p.ID)
		}
		if p.TransferAccount != 0 {
			if int(p.TransferAccount) > len(s.accounts) || p.TransferAccount < 0 {
				return nil, corrupt("payee %d transfers to unknown account %d", p.ID, p.TransferAccount)
			}
		}
		s.payees[i] = p
	}
	for _, a := range s.accounts {
		if a.TransferPayee <= 0 || int(a.TransferPayee) > len(s.payees) || s.payees[a.TransferPayee-1].TransferAccount != a.ID {
			return nil, corrupt("account %d has no matching transfer payee", a.ID)
		}
	}
	for i, g := range snap.CategoryGroups {
		if g.ID != core.CategoryGroupID(i+1) {
			return nil, corrupt("category group at position %d has id %d", i, g.ID)
		}
		g.Categories = append([]core.CategoryID(nil), g.Categories...)
		s.groups[i] = g
	}
	listed := make([]bool, len(snap.Categories))
	for _, g := range s.groups {
		for _, id := range g.Categories {
			if id <= 0 || int(id) > len(snap.Categories) || listed[id-1] || snap.Categories[id-1].Group != g.ID {
				return nil, corrupt("category group %d lists category %d", g.ID, id)
			}
			listed[id-1] = true
		}
	}
	for i, c := range snap.Categories {
		if c.ID != core.CategoryID(i+1) || !listed[i] {
			return nil, corrupt("category at position %d (id %d) is not in its group", i, c.ID)
		}
		if c.Goal != nil {
			g := *c.Goal
			c.Goal = &g
		}
		c.Budgeted, c.Activity, c.Balance = 0, 0, 0
		s.categories[i] = c
	}

	if snap.InflowCategory <= 0 || int(snap.InflowCategory) > len(s.categories) {
		return nil, corrupt("inflow category %d", snap.InflowCategory)
	}
	s.inflow = snap.InflowCategory
	s.masterGroup = s.categories[s.inflow-1].Group
	if snap.StartingBalancePayee <= 0 || int(snap.StartingBalancePayee) > len(s.payees) {
		return nil, corrupt("starting balance payee %d", snap.StartingBalancePayee)
	}
	s.startingBalance = snap.StartingBalancePayee

	for i, m := range snap.Months {
		if err := s.AdvanceToMonth(m.Month); err != nil {
			return nil, corrupt("month at position %d: %v", i, err)
		}
		s.months[i].month.Note = m.Note
		s.months[i].month.IsDeleted = m.IsDeleted
	}
	for _, a := range snap.Allocations {
		if a.Category <= 0 || int(a.Category) > len(s.categories) || a.Category == s.inflow {
			return nil, corrupt("allocation to category %d", a.Category)
		}
		mi, ok := s.monthIndex(a.Month)
		if !ok {
			return nil, corrupt("allocation in unknown month %s", a.Month)
		}
		s.months[mi].categories[a.Category-1].Budgeted = a.Amount
	}
	for i, t := range snap.Transactions {
		if t.ID != core.TransactionID(i+1) {
			return nil, corrupt("transaction at position %d has id %d", i, t.ID)
		}
		s.transactions[i] = t
	}

	if err := s.Recompute(); err != nil {
		return nil, corrupt("%v", err)
	}
	return &Budget{name: snap.Name, settings: snap.Settings, store: s}, nil
}

func checkNextIDs(snap Snapshot) error {
	n := snap.NextIDs
	switch {
	case int(n.Account) != len(snap.Accounts)+1:
		return corrupt("next account id %d with %d accounts", n.Account, len(snap.Accounts))
	case int(n.Payee) != len(snap.Payees)+1:
		return corrupt("next payee id %d with %d payees", n.Payee, len(snap.Payees))
	case int(n.CategoryGroup) != len(snap.CategoryGroups)+1:
		return corrupt("next category group id %d with %d groups", n.CategoryGroup, len(snap.CategoryGroups))
	case int(n.Category) != len(snap.Categories)+1:
		return corrupt("next category id %d with %d categories", n.Category, len(snap.Categories))
	case int(n.Transaction) != len(snap.Transactions)+1:
		return corrupt("next transaction id %d with %d transactions", n.Transaction, len(snap.Transactions))
	}
	return nil
}

// diffDerived compares the derived amounts of two snapshots of the same budget.
func diffDerived(want, got Snapshot) error {
	var errs []error
	if len(want.Accounts) != len(got.Accounts) || len(want.Months) != len(got.Months) ||
		len(want.CategoryMonths) != len(got.CategoryMonths) {
		return errors.New("recomputed budget has a different shape")
	}
	for i, a := range want.Accounts {
		g := got.Accounts[i]
		if a.Balance != g.Balance || a.ClearedBalance != g.ClearedBalance || a.UnclearedBalance != g.UnclearedBalance {
			errs = append(errs, fmt.Errorf("account %d: balance %s/%s/%s, recomputed %s/%s/%s", a.ID,
				a.Balance, a.ClearedBalance, a.UnclearedBalance, g.Balance, g.ClearedBalance, g.UnclearedBalance))
		}
	}
	for i, m := range want.Months {
		g := got.Months[i]
		if m.Income != g.Income || m.Budgeted != g.Budgeted || m.Activity != g.Activity || m.ToBeBudgeted != g.ToBeBudgeted {
			errs = append(errs, fmt.Errorf("month %s: totals differ from recomputation", m.Month))
		}
	}
	for i, cm := range want.CategoryMonths {
		if cm != got.CategoryMonths[i] {
			errs = append(errs, fmt.Errorf("month %s category %d: %s/%s/%s, recomputed %s/%s/%s", cm.Month, cm.Category,
				cm.Budgeted, cm.Activity, cm.Balance, got.CategoryMonths[i].Budgeted, got.CategoryMonths[i].Activity, got.CategoryMonths[i].Balance))
		}
	}
	return errors.Join(errs...)
}
