package services

import (
	"context"
	"errors"
	"fmt"

	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/sheets"
)

const transferCategory = "Transfer"

// BuildMonthExport assembles the summary and register of one month with ids
// resolved to names. Deleted entities keep their names so old rows still read.
func BuildMonthExport(b *ledger.Budget, key core.MonthKey) (sheets.MonthExport, error) {
	overview, err := b.Overview(key)
	if err != nil {
		return sheets.MonthExport{}, fmt.Errorf("overview %s: %w", key, err)
	}

	accounts := make(map[core.AccountID]string)
	for _, a := range b.Accounts(ledger.IncludeDeleted) {
		accounts[a.ID] = a.Name
	}
	payees := make(map[core.PayeeID]string)
	for _, p := range b.Payees(ledger.IncludeDeleted) {
		payees[p.ID] = p.Name
	}
	categories := make(map[core.CategoryID]string)
	for _, c := range b.Categories(ledger.IncludeDeleted) {
		categories[c.ID] = c.Name
	}

	txs := b.Transactions(ledger.TransactionFilter{From: key.First(), To: key.Last()})
	register := make([]sheets.RegisterRow, 0, len(txs))
	for _, t := range txs {
		row := sheets.RegisterRow{
			ID:       t.ID,
			Date:     t.Date,
			Account:  accounts[t.Account],
			Payee:    payees[t.Payee],
			Category: categories[t.Category],
			Memo:     t.Memo,
			Amount:   t.Amount,
			Cleared:  t.Cleared,
		}
		if t.IsTransfer() {
			row.Category = transferCategory
		}
		register = append(register, row)
	}

	return sheets.MonthExport{
		Overview: overview,
		Register: register,
		Settings: b.Settings(),
	}, nil
}

// ErrExportStale reports an exported month that no longer matches the ledger.
var ErrExportStale = errors.New("exported month is out of date")

// VerifyExport reads back an exported month and compares its totals and
// category rows with the ledger.
func VerifyExport(ctx context.Context, r sheets.OverviewReader, b *ledger.Budget, key core.MonthKey) error {
	want, err := b.Overview(key)
	if err != nil {
		return err
	}
	got, err := r.ReadMonthOverview(ctx, b.Name(), key)
	if err != nil {
		return fmt.Errorf("read exported %s: %w", key, err)
	}
	switch {
	case got.Income != want.Income:
		return fmt.Errorf("%w: income %s, ledger has %s", ErrExportStale, got.Income, want.Income)
	case got.Budgeted != want.Budgeted:
		return fmt.Errorf("%w: budgeted %s, ledger has %s", ErrExportStale, got.Budgeted, want.Budgeted)
	case got.Activity != want.Activity:
		return fmt.Errorf("%w: activity %s, ledger has %s", ErrExportStale, got.Activity, want.Activity)
	case got.ToBeBudgeted != want.ToBeBudgeted:
		return fmt.Errorf("%w: to be budgeted %s, ledger has %s", ErrExportStale, got.ToBeBudgeted, want.ToBeBudgeted)
	case len(got.ByCategory) != len(want.ByCategory):
		return fmt.Errorf("%w: %d categories, ledger has %d", ErrExportStale, len(got.ByCategory), len(want.ByCategory))
	}
	for i, c := range want.ByCategory {
		if got.ByCategory[i] != c {
			return fmt.Errorf("%w: category %s/%s differs", ErrExportStale, c.Group, c.Name)
		}
	}
	return nil
}
