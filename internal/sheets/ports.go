package sheets

import (
	"context"

	"envelope/internal/core"
)

// RegisterRow is one transaction line of an exported month, with ids
// already resolved to names.
type RegisterRow struct {
	ID       core.TransactionID
	Date     core.Date
	Account  string
	Payee    string
	Category string
	Memo     string
	Amount   core.Money
	Cleared  core.ClearedStatus
}

// MonthExport is everything written for one budget month.
type MonthExport struct {
	Overview core.MonthOverview
	Register []RegisterRow
	Settings core.BudgetSettings
}

// Ports for outbound adapters.
type (
	// MonthExporter replaces the exported copy of a month.
	MonthExporter interface {
		ExportMonth(ctx context.Context, e MonthExport) (ref string, err error)
	}

	// OverviewReader reads back a previously exported month summary.
	OverviewReader interface {
		ReadMonthOverview(ctx context.Context, budget string, month core.MonthKey) (core.MonthOverview, error)
	}
)
