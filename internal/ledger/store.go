// Package ledger keeps account, category and month balances consistent as
// transactions and allocations are applied.
//
// Entities live in arenas indexed by their identifier (id-1). Identifiers are
// issued from the arena length and never reused; removal is a soft delete so
// historical transactions keep resolving.
package ledger

import (
	"fmt"
	"sort"

	"envelope/internal/core"
)

// View selects whether lookups see soft-deleted entities.
type View int

const (
	ActiveOnly View = iota
	IncludeDeleted
)

const (
	masterGroupName          = "Internal Master Category"
	inflowCategoryName       = "Inflow: To Be Budgeted"
	startingBalancePayeeName = "Starting Balance"
	transferPayeePrefix      = "Transfer : "
)

// monthState is one budget month plus the state of every category in it.
// categories is indexed by CategoryID-1 and grows with the category arena.
type monthState struct {
	month      core.Month
	categories []core.CategoryMonth
}

// Store owns the entity collections of one budget. It is not safe for
// concurrent use; Budget serializes access.
type Store struct {
	accounts     []core.Account
	payees       []core.Payee
	groups       []core.CategoryGroup
	categories   []core.Category
	transactions []core.Transaction
	months       []*monthState

	masterGroup     core.CategoryGroupID
	inflow          core.CategoryID
	startingBalance core.PayeeID
}

// NewStore returns a store holding only the internal master group, the
// inflow category and the starting balance payee.
func NewStore() *Store {
	s := &Store{}
	s.masterGroup = s.appendGroup(masterGroupName, true)
	s.inflow = s.appendCategory(s.masterGroup, inflowCategoryName)
	s.startingBalance = s.appendPayee(startingBalancePayeeName, 0)
	return s
}

// InflowCategory returns the designated "Inflow: To Be Budgeted" category.
func (s *Store) InflowCategory() core.CategoryID { return s.inflow }

// StartingBalancePayee returns the payee used for opening balances.
func (s *Store) StartingBalancePayee() core.PayeeID { return s.startingBalance }

func (s *Store) appendGroup(name string, hidden bool) core.CategoryGroupID {
	id := core.CategoryGroupID(len(s.groups) + 1)
	s.groups = append(s.groups, core.CategoryGroup{ID: id, Name: name, IsHidden: hidden})
	return id
}

func (s *Store) appendCategory(group core.CategoryGroupID, name string) core.CategoryID {
	id := core.CategoryID(len(s.categories) + 1)
	s.categories = append(s.categories, core.Category{ID: id, Group: group, Name: name})
	g := &s.groups[group-1]
	g.Categories = append(g.Categories, id)
	for _, m := range s.months {
		m.categories = append(m.categories, core.CategoryMonth{Category: id, Month: m.month.Month})
	}
	return id
}

func (s *Store) appendPayee(name string, transfer core.AccountID) core.PayeeID {
	id := core.PayeeID(len(s.payees) + 1)
	s.payees = append(s.payees, core.Payee{ID: id, Name: name, TransferAccount: transfer})
	return id
}

// AddAccount creates an account with zero balances and its transfer payee.
func (s *Store) AddAccount(name string, kind core.AccountKind, onBudget bool, note string) (core.AccountID, error) {
	if err := core.ValidateName(name); err != nil {
		return 0, fmt.Errorf("account name: %w", err)
	}
	if !kind.IsValid() {
		return 0, fmt.Errorf("account %q: %w", name, core.ErrInvalidAccountKind)
	}
	id := core.AccountID(len(s.accounts) + 1)
	s.accounts = append(s.accounts, core.Account{
		ID:       id,
		Name:     name,
		Kind:     kind,
		OnBudget: onBudget,
		Note:     note,
	})
	s.accounts[id-1].TransferPayee = s.appendPayee(transferPayeePrefix+name, id)
	return id, nil
}

// dropLastAccount undoes AddAccount while nothing else was appended since.
func (s *Store) dropLastAccount(id core.AccountID) {
	if int(id) != len(s.accounts) {
		return
	}
	payee := s.accounts[id-1].TransferPayee
	s.accounts = s.accounts[:len(s.accounts)-1]
	if int(payee) == len(s.payees) {
		s.payees = s.payees[:len(s.payees)-1]
	}
}

// AddPayee creates a regular payee.
func (s *Store) AddPayee(name string) (core.PayeeID, error) {
	if err := core.ValidateName(name); err != nil {
		return 0, fmt.Errorf("payee name: %w", err)
	}
	return s.appendPayee(name, 0), nil
}

// AddCategoryGroup creates an empty, visible group.
func (s *Store) AddCategoryGroup(name string) (core.CategoryGroupID, error) {
	if err := core.ValidateName(name); err != nil {
		return 0, fmt.Errorf("category group name: %w", err)
	}
	return s.appendGroup(name, false), nil
}

// AddCategory appends a category to an active group. The category starts with
// zero budgeted, activity and balance in every existing month.
func (s *Store) AddCategory(group core.CategoryGroupID, name string) (core.CategoryID, error) {
	if err := core.ValidateName(name); err != nil {
		return 0, fmt.Errorf("category name: %w", err)
	}
	if _, err := s.group(group, ActiveOnly); err != nil {
		return 0, err
	}
	return s.appendCategory(group, name), nil
}

func (s *Store) account(id core.AccountID, v View) (*core.Account, error) {
	if id <= 0 || int(id) > len(s.accounts) {
		return nil, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	a := &s.accounts[id-1]
	if a.IsDeleted && v == ActiveOnly {
		return nil, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (s *Store) payee(id core.PayeeID, v View) (*core.Payee, error) {
	if id <= 0 || int(id) > len(s.payees) {
		return nil, fmt.Errorf("payee %d: %w", id, core.ErrNotFound)
	}
	p := &s.payees[id-1]
	if p.IsDeleted && v == ActiveOnly {
		return nil, fmt.Errorf("payee %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) group(id core.CategoryGroupID, v View) (*core.CategoryGroup, error) {
	if id <= 0 || int(id) > len(s.groups) {
		return nil, fmt.Errorf("category group %d: %w", id, core.ErrNotFound)
	}
	g := &s.groups[id-1]
	if g.IsDeleted && v == ActiveOnly {
		return nil, fmt.Errorf("category group %d: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (s *Store) category(id core.CategoryID, v View) (*core.Category, error) {
	if id <= 0 || int(id) > len(s.categories) {
		return nil, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	c := &s.categories[id-1]
	if c.IsDeleted && v == ActiveOnly {
		return nil, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) transaction(id core.TransactionID, v View) (*core.Transaction, error) {
	if id <= 0 || int(id) > len(s.transactions) {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	t := &s.transactions[id-1]
	if t.IsDeleted && v == ActiveOnly {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return t, nil
}

// monthIndex maps a key to its position in the gapless month slice.
func (s *Store) monthIndex(key core.MonthKey) (int, bool) {
	if len(s.months) == 0 {
		return 0, false
	}
	i := int(key - s.months[0].month.Month)
	if i < 0 || i >= len(s.months) {
		return 0, false
	}
	return i, true
}

// Account returns a copy of the account.
func (s *Store) Account(id core.AccountID, v View) (core.Account, error) {
	a, err := s.account(id, v)
	if err != nil {
		return core.Account{}, err
	}
	return *a, nil
}

// Payee returns a copy of the payee.
func (s *Store) Payee(id core.PayeeID, v View) (core.Payee, error) {
	p, err := s.payee(id, v)
	if err != nil {
		return core.Payee{}, err
	}
	return *p, nil
}

// CategoryGroup returns a copy of the group. With ActiveOnly the category
// list leaves out deleted categories.
func (s *Store) CategoryGroup(id core.CategoryGroupID, v View) (core.CategoryGroup, error) {
	g, err := s.group(id, v)
	if err != nil {
		return core.CategoryGroup{}, err
	}
	return s.copyGroup(g, v), nil
}

func (s *Store) copyGroup(g *core.CategoryGroup, v View) core.CategoryGroup {
	out := *g
	out.Categories = make([]core.CategoryID, 0, len(g.Categories))
	for _, id := range g.Categories {
		if v == ActiveOnly && s.categories[id-1].IsDeleted {
			continue
		}
		out.Categories = append(out.Categories, id)
	}
	return out
}

// Category returns a copy of the category with Budgeted, Activity and Balance
// taken from the latest month.
func (s *Store) Category(id core.CategoryID, v View) (core.Category, error) {
	c, err := s.category(id, v)
	if err != nil {
		return core.Category{}, err
	}
	return s.copyCategory(c), nil
}

func (s *Store) copyCategory(c *core.Category) core.Category {
	out := *c
	if c.Goal != nil {
		g := *c.Goal
		out.Goal = &g
	}
	if n := len(s.months); n > 0 {
		cm := s.months[n-1].categories[c.ID-1]
		out.Budgeted, out.Activity, out.Balance = cm.Budgeted, cm.Activity, cm.Balance
	}
	return out
}

// Transaction returns a copy of the transaction.
func (s *Store) Transaction(id core.TransactionID, v View) (core.Transaction, error) {
	t, err := s.transaction(id, v)
	if err != nil {
		return core.Transaction{}, err
	}
	return *t, nil
}

// Month returns the month totals for key. AgeOfMoney is left nil; it is
// derived from History on demand.
func (s *Store) Month(key core.MonthKey) (core.Month, error) {
	i, ok := s.monthIndex(key)
	if !ok {
		return core.Month{}, fmt.Errorf("month %s: %w", key, core.ErrNotFound)
	}
	return s.months[i].month, nil
}

// CategoryMonth returns a category's budgeted, activity and balance in one month.
func (s *Store) CategoryMonth(id core.CategoryID, key core.MonthKey) (core.CategoryMonth, error) {
	if _, err := s.category(id, IncludeDeleted); err != nil {
		return core.CategoryMonth{}, err
	}
	i, ok := s.monthIndex(key)
	if !ok {
		return core.CategoryMonth{}, fmt.Errorf("month %s: %w", key, core.ErrNotFound)
	}
	return s.months[i].categories[id-1], nil
}

// LatestMonth returns the most recent month key, or false when no month exists.
func (s *Store) LatestMonth() (core.MonthKey, bool) {
	if len(s.months) == 0 {
		return 0, false
	}
	return s.months[len(s.months)-1].month.Month, true
}

// Accounts lists accounts in creation order.
func (s *Store) Accounts(v View) []core.Account {
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.IsDeleted && v == ActiveOnly {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Payees lists payees in creation order.
func (s *Store) Payees(v View) []core.Payee {
	out := make([]core.Payee, 0, len(s.payees))
	for _, p := range s.payees {
		if p.IsDeleted && v == ActiveOnly {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CategoryGroups lists groups in creation order with their ordered categories.
func (s *Store) CategoryGroups(v View) []core.CategoryGroup {
	out := make([]core.CategoryGroup, 0, len(s.groups))
	for i := range s.groups {
		g := &s.groups[i]
		if g.IsDeleted && v == ActiveOnly {
			continue
		}
		out = append(out, s.copyGroup(g, v))
	}
	return out
}

// Categories lists categories in creation order.
func (s *Store) Categories(v View) []core.Category {
	out := make([]core.Category, 0, len(s.categories))
	for i := range s.categories {
		c := &s.categories[i]
		if c.IsDeleted && v == ActiveOnly {
			continue
		}
		out = append(out, s.copyCategory(c))
	}
	return out
}

// Months lists every month in ascending order.
func (s *Store) Months() []core.Month {
	out := make([]core.Month, len(s.months))
	for i, m := range s.months {
		out[i] = m.month
	}
	return out
}

// TransactionFilter narrows Transactions. Zero fields do not filter.
type TransactionFilter struct {
	// Account matches either side of a transfer.
	Account  core.AccountID
	Category core.CategoryID
	Payee    core.PayeeID
	From     core.Date
	To       core.Date
	View     View
}

func (f TransactionFilter) match(t core.Transaction) bool {
	if t.IsDeleted && f.View == ActiveOnly {
		return false
	}
	if f.Account != 0 && t.Account != f.Account && t.TransferAccount != f.Account {
		return false
	}
	if f.Category != 0 && t.Category != f.Category {
		return false
	}
	if f.Payee != 0 && t.Payee != f.Payee {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	return true
}

// Transactions returns matching transactions ordered by date, then id.
func (s *Store) Transactions(f TransactionFilter) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if f.match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CloseAccount marks the account closed; closed accounts reject new transactions.
func (s *Store) CloseAccount(id core.AccountID) error {
	a, err := s.account(id, ActiveOnly)
	if err != nil {
		return err
	}
	a.IsClosed = true
	return nil
}

// ReopenAccount clears the closed flag.
func (s *Store) ReopenAccount(id core.AccountID) error {
	a, err := s.account(id, ActiveOnly)
	if err != nil {
		return err
	}
	a.IsClosed = false
	return nil
}

// DeleteAccount soft-deletes the account and its transfer payee. Balances and
// transactions are kept.
func (s *Store) DeleteAccount(id core.AccountID) error {
	a, err := s.account(id, ActiveOnly)
	if err != nil {
		return err
	}
	a.IsDeleted = true
	if a.TransferPayee != 0 {
		s.payees[a.TransferPayee-1].IsDeleted = true
	}
	return nil
}

// DeletePayee soft-deletes a regular payee.
func (s *Store) DeletePayee(id core.PayeeID) error {
	p, err := s.payee(id, ActiveOnly)
	if err != nil {
		return err
	}
	if p.TransferAccount != 0 || id == s.startingBalance {
		return fmt.Errorf("payee %d: %w", id, core.ErrReserved)
	}
	p.IsDeleted = true
	return nil
}

// DeleteCategoryGroup soft-deletes the group and every category in it.
func (s *Store) DeleteCategoryGroup(id core.CategoryGroupID) error {
	g, err := s.group(id, ActiveOnly)
	if err != nil {
		return err
	}
	if id == s.masterGroup {
		return fmt.Errorf("category group %d: %w", id, core.ErrReserved)
	}
	g.IsDeleted = true
	for _, c := range g.Categories {
		s.categories[c-1].IsDeleted = true
	}
	return nil
}

// DeleteCategory soft-deletes a category. Money left in it stays part of its balance.
func (s *Store) DeleteCategory(id core.CategoryID) error {
	c, err := s.category(id, ActiveOnly)
	if err != nil {
		return err
	}
	if id == s.inflow {
		return fmt.Errorf("category %d: %w", id, core.ErrReserved)
	}
	c.IsDeleted = true
	return nil
}

// HideCategory toggles visibility; hidden categories keep working.
func (s *Store) HideCategory(id core.CategoryID, hidden bool) error {
	c, err := s.category(id, ActiveOnly)
	if err != nil {
		return err
	}
	c.IsHidden = hidden
	return nil
}

// SetCategoryNote replaces the category note.
func (s *Store) SetCategoryNote(id core.CategoryID, note string) error {
	c, err := s.category(id, ActiveOnly)
	if err != nil {
		return err
	}
	c.Note = note
	return nil
}

// SetMonthNote replaces the month note.
func (s *Store) SetMonthNote(key core.MonthKey, note string) error {
	i, ok := s.monthIndex(key)
	if !ok {
		return fmt.Errorf("month %s: %w", key, core.ErrNotFound)
	}
	s.months[i].month.Note = note
	return nil
}
