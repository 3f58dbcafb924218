package ledger

import (
	"errors"
	"fmt"

	"envelope/internal/core"
)

// AdvanceToMonth creates the month after the latest one. The first month may
// be any key. The new month starts with the previous month's to-be-budgeted
// amount and category balances; income, budgeted and activity start at zero.
func (s *Store) AdvanceToMonth(key core.MonthKey) error {
	var prev *monthState
	if n := len(s.months); n > 0 {
		prev = s.months[n-1]
		if want := prev.month.Month.Next(); key != want {
			return fmt.Errorf("month %s (next is %s): %w", key, want, core.ErrMonthOutOfOrder)
		}
	}
	next := &monthState{
		month:      core.Month{Month: key},
		categories: make([]core.CategoryMonth, len(s.categories)),
	}
	for i := range next.categories {
		next.categories[i] = core.CategoryMonth{Category: core.CategoryID(i + 1), Month: key}
		if prev != nil {
			next.categories[i].Balance = prev.categories[i].Balance
		}
	}
	if prev != nil {
		next.month.ToBeBudgeted = prev.month.ToBeBudgeted
	}
	s.months = append(s.months, next)
	return nil
}

// AddMonth is AdvanceToMonth under the store's add-entity naming.
func (s *Store) AddMonth(key core.MonthKey) error {
	return s.AdvanceToMonth(key)
}

// SetBudgeted sets the amount allocated to a category in one month and
// carries the difference into later months: every later category balance
// moves by the delta and every to-be-budgeted amount from this month on
// moves by its negation.
func (s *Store) SetBudgeted(id core.CategoryID, key core.MonthKey, amount core.Money) error {
	i, ok := s.monthIndex(key)
	if !ok {
		return fmt.Errorf("month %s: %w", key, core.ErrNotFound)
	}
	if id == s.inflow {
		return fmt.Errorf("%w: cannot budget the inflow category", core.ErrInvalidAllocation)
	}
	if _, err := s.category(id, ActiveOnly); err != nil {
		return err
	}
	ci := id - 1
	cm := &s.months[i].categories[ci]
	delta := amount - cm.Budgeted
	if delta == 0 {
		return nil
	}
	cm.Budgeted = amount
	s.months[i].month.Budgeted += delta
	for _, later := range s.months[i:] {
		later.categories[ci].Balance += delta
		later.month.ToBeBudgeted -= delta
	}
	return nil
}

// Recompute rebuilds every derived amount from allocations and stored
// transactions: account balances, category activity and balances, and month
// income, budgeted, activity and to-be-budgeted.
func (s *Store) Recompute() error {
	postings := make([]posting, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.IsDeleted {
			continue
		}
		p, err := s.prepare(t, replayRules)
		if err != nil {
			return fmt.Errorf("replay transaction %d: %w", t.ID, err)
		}
		postings = append(postings, p)
	}

	for i := range s.accounts {
		a := &s.accounts[i]
		a.Balance, a.ClearedBalance, a.UnclearedBalance = 0, 0, 0
	}
	for _, m := range s.months {
		m.month.Income, m.month.Budgeted, m.month.Activity, m.month.ToBeBudgeted = 0, 0, 0, 0
		for ci := range m.categories {
			m.categories[ci].Activity = 0
			m.categories[ci].Balance = 0
		}
	}

	for _, p := range postings {
		s.apply(p, false)
	}

	var prev *monthState
	for _, m := range s.months {
		for ci := range m.categories {
			cm := &m.categories[ci]
			m.month.Budgeted += cm.Budgeted
			cm.Balance = cm.Budgeted + cm.Activity
			if prev != nil {
				cm.Balance += prev.categories[ci].Balance
			}
		}
		m.month.ToBeBudgeted = m.month.Income - m.month.Budgeted
		if prev != nil {
			m.month.ToBeBudgeted += prev.month.ToBeBudgeted
		}
		prev = m
	}
	return nil
}

// Verify checks the ledger invariants and returns every violation joined.
func (s *Store) Verify() error {
	var errs []error
	for _, a := range s.accounts {
		if a.Balance != a.ClearedBalance+a.UnclearedBalance {
			errs = append(errs, fmt.Errorf("account %d: balance %s != cleared %s + uncleared %s",
				a.ID, a.Balance, a.ClearedBalance, a.UnclearedBalance))
		}
	}

	var prev *monthState
	for _, m := range s.months {
		key := m.month.Month
		if prev != nil && key != prev.month.Month.Next() {
			errs = append(errs, fmt.Errorf("month %s follows %s: %w", key, prev.month.Month, core.ErrMonthOutOfOrder))
		}
		if len(m.categories) != len(s.categories) {
			errs = append(errs, fmt.Errorf("month %s: %d category rows for %d categories", key, len(m.categories), len(s.categories)))
			prev = m
			continue
		}
		var budgeted, activity core.Money
		for ci, cm := range m.categories {
			budgeted += cm.Budgeted
			activity += cm.Activity
			want := cm.Budgeted + cm.Activity
			if prev != nil {
				want += prev.categories[ci].Balance
			}
			if cm.Balance != want {
				errs = append(errs, fmt.Errorf("month %s category %d: balance %s, want %s", key, cm.Category, cm.Balance, want))
			}
			if cm.Category == s.inflow && (cm.Budgeted != 0 || cm.Activity != 0) {
				errs = append(errs, fmt.Errorf("month %s: inflow category carries budgeted %s activity %s", key, cm.Budgeted, cm.Activity))
			}
		}
		if m.month.Budgeted != budgeted {
			errs = append(errs, fmt.Errorf("month %s: budgeted %s, categories sum to %s", key, m.month.Budgeted, budgeted))
		}
		if m.month.Activity != activity {
			errs = append(errs, fmt.Errorf("month %s: activity %s, categories sum to %s", key, m.month.Activity, activity))
		}
		wantTBB := m.month.Income - m.month.Budgeted
		if prev != nil {
			wantTBB += prev.month.ToBeBudgeted
		}
		if m.month.ToBeBudgeted != wantTBB {
			errs = append(errs, fmt.Errorf("month %s: to be budgeted %s, want %s", key, m.month.ToBeBudgeted, wantTBB))
		}
		prev = m
	}
	return errors.Join(errs...)
}
