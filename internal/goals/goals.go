// Package goals evaluates category goals. Evaluation is a pure function of the
// goal, the category's state in a month and that month; nothing is stored.
package goals

import (
	"envelope/internal/core"
)

// Status summarizes a goal's progress in a month.
type Status string

const (
	Complete Status = "complete"
	OnTrack  Status = "onTrack"
	// Underfunded means this month's allocation is below what the goal
	// requires. It is a report, not an error.
	Underfunded Status = "underfunded"
	// Overdue means the target month has passed without reaching the target.
	Overdue Status = "overdue"
)

// State is the category state a goal is measured against.
type State struct {
	// Balance is the category balance at the end of the month.
	Balance core.Money
	// Budgeted is the amount allocated to the category in the month.
	Budgeted core.Money
}

// Progress is the derived view of one goal in one month.
type Progress struct {
	Kind   core.GoalKind
	Status Status
	// Fraction is how close the goal is to complete, between 0 and 1.
	Fraction float64
	// Remaining is the distance from the balance to the target.
	Remaining core.Money
	// RequiredThisMonth is the full amount the goal asks for in this month,
	// before counting what has already been budgeted.
	RequiredThisMonth core.Money
	// Underfunded is the funding still required this month:
	// max(0, RequiredThisMonth - budgeted this month).
	Underfunded     core.Money
	MonthsRemaining int
	// Schedule lists the required funding for each month up to the target
	// month, starting with the current one. Only set for dated targets.
	Schedule []core.Money
}

// Evaluate computes the progress of g for a category in state st during current.
func Evaluate(g core.Goal, st State, current core.MonthKey) Progress {
	switch g.Kind {
	case core.TargetCategoryBalance:
		return targetBalance(g, st)
	case core.TargetCategoryBalanceByDate:
		return targetByDate(g, st, current)
	case core.MonthlyFunding:
		return monthlyFunding(g, st)
	}
	return Progress{Kind: g.Kind}
}

func targetBalance(g core.Goal, st State) Progress {
	p := Progress{
		Kind:      g.Kind,
		Fraction:  fraction(st.Balance, g.Target),
		Remaining: core.MaxMoney(0, g.Target-st.Balance),
		Status:    OnTrack,
	}
	if p.Remaining == 0 {
		p.Status = Complete
	}
	return p
}

func targetByDate(g core.Goal, st State, current core.MonthKey) Progress {
	p := Progress{
		Kind:      g.Kind,
		Fraction:  fraction(st.Balance, g.Target),
		Remaining: core.MaxMoney(0, g.Target-st.Balance),
	}
	// Funds that were already in the category when the month started.
	base := st.Balance - st.Budgeted
	need := core.MaxMoney(0, g.Target-base)

	if current > g.ByMonth {
		p.RequiredThisMonth = need
		p.Underfunded = core.MaxMoney(0, need-st.Budgeted)
		p.Status = Overdue
		if p.Remaining == 0 {
			p.Status = Complete
		}
		return p
	}

	p.MonthsRemaining = current.MonthsUntil(g.ByMonth) + 1
	p.Schedule = core.Split(need, p.MonthsRemaining)
	p.RequiredThisMonth = p.Schedule[0]
	p.Underfunded = core.MaxMoney(0, p.RequiredThisMonth-st.Budgeted)
	switch {
	case p.Remaining == 0:
		p.Status = Complete
	case p.Underfunded > 0:
		p.Status = Underfunded
	default:
		p.Status = OnTrack
	}
	return p
}

// monthlyFunding asks for FundingBalance every month. What is still required
// for the current month is max(0, FundingBalance - budgeted), reported as
// Underfunded.
func monthlyFunding(g core.Goal, st State) Progress {
	p := Progress{
		Kind:              g.Kind,
		Fraction:          fraction(st.Budgeted, g.FundingBalance),
		RequiredThisMonth: g.FundingBalance,
		Underfunded:       core.MaxMoney(0, g.FundingBalance-st.Budgeted),
	}
	p.Remaining = p.Underfunded
	p.Status = Complete
	if p.Underfunded > 0 {
		p.Status = Underfunded
	}
	return p
}

// fraction returns have/want clamped to [0, 1]; a non-positive want is complete.
func fraction(have, want core.Money) float64 {
	if want <= 0 || have >= want {
		return 1
	}
	if have <= 0 {
		return 0
	}
	return float64(have) / float64(want)
}
