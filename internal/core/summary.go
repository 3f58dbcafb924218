package core

// CategoryAmount is one category row of a month overview.
type CategoryAmount struct {
	Group    string
	Name     string
	Budgeted Money
	Activity Money
	Balance  Money
}

// MonthOverview is a flat, export-friendly summary of one budget month.
type MonthOverview struct {
	Budget       string
	Month        MonthKey
	Income       Money
	Budgeted     Money
	Activity     Money
	ToBeBudgeted Money
	AgeOfMoney   *int
	ByCategory   []CategoryAmount
}
