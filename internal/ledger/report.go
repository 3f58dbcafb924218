package ledger

import (
	"envelope/internal/core"
	"envelope/internal/goals"
)

// CategoryReport is one category row of a month report.
type CategoryReport struct {
	core.CategoryMonth
	Group     core.CategoryGroupID
	GroupName string
	Name      string
	IsHidden  bool
	// Goal is nil for categories without a goal.
	Goal *goals.Progress
}

// MonthReport is a month's totals with per-category rows, goal progress and
// age of money.
type MonthReport struct {
	core.Month
	Categories []CategoryReport
	// Underfunded sums what goals still ask to be budgeted this month.
	Underfunded core.Money
}

// AccountReport is an account with its register.
type AccountReport struct {
	core.Account
	Transactions []core.Transaction
}

// MonthReport builds the report for key. Rows cover active, non-internal
// groups and categories in display order. Age of money is computed after the
// lock is released.
func (b *Budget) MonthReport(key core.MonthKey) (MonthReport, error) {
	b.mu.RLock()
	s := b.store
	m, err := s.Month(key)
	if err != nil {
		b.mu.RUnlock()
		return MonthReport{}, err
	}
	mi, _ := s.monthIndex(key)
	r := MonthReport{Month: m}
	for gi := range s.groups {
		g := &s.groups[gi]
		if g.IsDeleted || g.ID == s.masterGroup {
			continue
		}
		for _, id := range g.Categories {
			c := &s.categories[id-1]
			if c.IsDeleted {
				continue
			}
			row := CategoryReport{
				CategoryMonth: s.months[mi].categories[id-1],
				Group:         g.ID,
				GroupName:     g.Name,
				Name:          c.Name,
				IsHidden:      c.IsHidden,
			}
			if c.Goal != nil {
				p := goals.Evaluate(*c.Goal, goals.State{Balance: row.Balance, Budgeted: row.Budgeted}, key)
				row.Goal = &p
				r.Underfunded += p.Underfunded
			}
			r.Categories = append(r.Categories, row)
		}
	}
	h := s.History()
	b.mu.RUnlock()

	if age, ok := h.MonthAgeOfMoney(key); ok {
		r.AgeOfMoney = &age
	}
	return r, nil
}

// AccountReport returns the account with its non-deleted transactions.
func (b *Budget) AccountReport(id core.AccountID) (AccountReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, err := b.store.Account(id, IncludeDeleted)
	if err != nil {
		return AccountReport{}, err
	}
	return AccountReport{
		Account:      a,
		Transactions: b.store.Transactions(TransactionFilter{Account: id}),
	}, nil
}

// Overview flattens the month report for exporters.
func (b *Budget) Overview(key core.MonthKey) (core.MonthOverview, error) {
	r, err := b.MonthReport(key)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return r.Overview(b.Name()), nil
}

// Overview flattens the report under the given budget name.
func (r MonthReport) Overview(budget string) core.MonthOverview {
	o := core.MonthOverview{
		Budget:       budget,
		Month:        r.Month.Month,
		Income:       r.Income,
		Budgeted:     r.Budgeted,
		Activity:     r.Activity,
		ToBeBudgeted: r.ToBeBudgeted,
		AgeOfMoney:   r.AgeOfMoney,
		ByCategory:   make([]core.CategoryAmount, 0, len(r.Categories)),
	}
	for _, c := range r.Categories {
		o.ByCategory = append(o.ByCategory, core.CategoryAmount{
			Group:    c.GroupName,
			Name:     c.Name,
			Budgeted: c.Budgeted,
			Activity: c.Activity,
			Balance:  c.Balance,
		})
	}
	return o
}
