package google

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"envelope/internal/core"
	"envelope/internal/sheets"

	"github.com/shopspring/decimal"
)

// Summary labels in column A of an exported month tab.
const (
	labelBudget       = "Budget"
	labelMonth        = "Month"
	labelIncome       = "Income"
	labelBudgeted     = "Budgeted"
	labelActivity     = "Activity"
	labelToBeBudgeted = "To Be Budgeted"
	labelAgeOfMoney   = "Age of Money"
)

var (
	categoryHeader = []any{"Group", "Category", "Budgeted", "Activity", "Balance", "Available"}
	registerHeader = []any{"Date", "Account", "Payee", "Category", "Memo", "Amount", "Cleared", "ID"}
)

var errLayout = errors.New("unexpected overview layout")

// amountCell renders milliunits as a plain decimal the sheet parses as a number.
func amountCell(m core.Money) string {
	return decimal.New(m.Milliunits(), -3).StringFixed(3)
}

// monthValues lays out a month export: summary rows, the category table and
// the register, separated by blank rows.
func monthValues(e sheets.MonthExport) [][]any {
	o := e.Overview
	age := ""
	if o.AgeOfMoney != nil {
		age = strconv.Itoa(*o.AgeOfMoney)
	}
	rows := [][]any{
		{labelBudget, o.Budget},
		{labelMonth, o.Month.String()},
		{labelIncome, amountCell(o.Income)},
		{labelBudgeted, amountCell(o.Budgeted)},
		{labelActivity, amountCell(o.Activity)},
		{labelToBeBudgeted, amountCell(o.ToBeBudgeted)},
		{labelAgeOfMoney, age},
		{},
		categoryHeader,
	}
	cf := e.Settings.CurrencyFormat
	for _, c := range o.ByCategory {
		rows = append(rows, []any{c.Group, c.Name, amountCell(c.Budgeted), amountCell(c.Activity), amountCell(c.Balance), cf.Format(c.Balance)})
	}
	rows = append(rows, []any{}, registerHeader)
	for _, r := range e.Register {
		rows = append(rows, []any{
			e.Settings.FormatDate(r.Date), r.Account, r.Payee, r.Category, r.Memo,
			amountCell(r.Amount), r.Cleared.String(), strconv.FormatInt(int64(r.ID), 10),
		})
	}
	return rows
}

// parseOverview reads back the summary and category table written by monthValues.
func parseOverview(values [][]any) (core.MonthOverview, error) {
	var o core.MonthOverview
	i := 0
	seen := map[string]bool{}
	for ; i < len(values); i++ {
		row := toStrings(values[i])
		if len(row) == 0 || row[0] == "" {
			i++
			break
		}
		label, val := row[0], safeGet(row, 1)
		seen[label] = true
		var err error
		switch label {
		case labelBudget:
			o.Budget = val
		case labelMonth:
			o.Month, err = core.ParseMonthKey(val)
		case labelIncome:
			o.Income, err = core.ParseMilliunits(val)
		case labelBudgeted:
			o.Budgeted, err = core.ParseMilliunits(val)
		case labelActivity:
			o.Activity, err = core.ParseMilliunits(val)
		case labelToBeBudgeted:
			o.ToBeBudgeted, err = core.ParseMilliunits(val)
		case labelAgeOfMoney:
			if val != "" {
				var days int
				days, err = strconv.Atoi(val)
				o.AgeOfMoney = &days
			}
		default:
			return core.MonthOverview{}, fmt.Errorf("%w: unknown summary label %q", errLayout, label)
		}
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("%w: %s: %v", errLayout, label, err)
		}
	}
	for _, l := range []string{labelBudget, labelMonth, labelToBeBudgeted} {
		if !seen[l] {
			return core.MonthOverview{}, fmt.Errorf("%w: missing %q", errLayout, l)
		}
	}

	if i >= len(values) || indexOf(toStrings(values[i]), "Category") != 1 {
		return core.MonthOverview{}, fmt.Errorf("%w: missing category header", errLayout)
	}
	for i++; i < len(values); i++ {
		row := toStrings(values[i])
		if len(row) == 0 || strings.Join(row, "") == "" {
			break
		}
		c := core.CategoryAmount{Group: row[0], Name: safeGet(row, 1)}
		var err error
		if c.Budgeted, err = core.ParseMilliunits(safeGet(row, 2)); err == nil {
			if c.Activity, err = core.ParseMilliunits(safeGet(row, 3)); err == nil {
				c.Balance, err = core.ParseMilliunits(safeGet(row, 4))
			}
		}
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("%w: category %q: %v", errLayout, c.Name, err)
		}
		o.ByCategory = append(o.ByCategory, c)
	}
	return o, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
