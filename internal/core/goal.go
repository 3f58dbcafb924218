package core

import "fmt"

const (
	TargetCategoryBalance GoalKind = iota + 1
	TargetCategoryBalanceByDate
	MonthlyFunding
)

// GoalKind selects how a category goal is measured. It is fixed when the goal is created.
type GoalKind int

// Goal is a funding target attached to a category. Progress is always derived
// from the category, never stored here.
type Goal struct {
	Kind GoalKind
	// Target is the balance to reach for the two target kinds.
	Target Money
	// ByMonth is the deadline month for TargetCategoryBalanceByDate.
	ByMonth MonthKey
	// FundingBalance is the amount to budget each month for MonthlyFunding.
	FundingBalance Money
	CreationMonth  MonthKey
}

// String implements fmt.Stringer
func (k GoalKind) String() string {
	switch k {
	case TargetCategoryBalance:
		return "targetCategoryBalance"
	case TargetCategoryBalanceByDate:
		return "targetCategoryBalanceByDate"
	case MonthlyFunding:
		return "monthlyFunding"
	default:
		return fmt.Sprintf("GoalKind(%d)", int(k))
	}
}

// ParseGoalKind maps the names used by String back to kinds.
func ParseGoalKind(s string) (GoalKind, error) {
	for _, k := range []GoalKind{TargetCategoryBalance, TargetCategoryBalanceByDate, MonthlyFunding} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("goal kind %q: %w", s, ErrInvalidGoal)
}

// Validate checks the goal parameters for its kind.
func (g Goal) Validate() error {
	switch g.Kind {
	case TargetCategoryBalance:
		if g.Target <= 0 {
			return fmt.Errorf("%w: target must be positive", ErrInvalidGoal)
		}
	case TargetCategoryBalanceByDate:
		if g.Target <= 0 {
			return fmt.Errorf("%w: target must be positive", ErrInvalidGoal)
		}
		if g.ByMonth < g.CreationMonth {
			return fmt.Errorf("%w: target month %s precedes creation month %s", ErrInvalidGoal, g.ByMonth, g.CreationMonth)
		}
	case MonthlyFunding:
		if g.FundingBalance <= 0 {
			return fmt.Errorf("%w: funding balance must be positive", ErrInvalidGoal)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidGoal, int(g.Kind))
	}
	return nil
}
