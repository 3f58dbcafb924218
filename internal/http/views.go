package http

import (
	"envelope/internal/core"
	"envelope/internal/goals"
	"envelope/internal/ledger"
	"envelope/internal/services"
)

// money carries exact milliunits alongside the budget's formatted display.
type money struct {
	Milliunits int64  `json:"milliunits"`
	Display    string `json:"display"`
}

// presenter renders domain values with a budget's settings.
type presenter struct {
	settings core.BudgetSettings
}

func (p presenter) money(m core.Money) money {
	return money{Milliunits: m.Milliunits(), Display: p.settings.CurrencyFormat.Format(m)}
}

type accountView struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Liability        bool   `json:"liability"`
	OnBudget         bool   `json:"on_budget"`
	Closed           bool   `json:"closed"`
	Note             string `json:"note,omitempty"`
	Balance          money  `json:"balance"`
	ClearedBalance   money  `json:"cleared_balance"`
	UnclearedBalance money  `json:"uncleared_balance"`
	TransferPayeeID  int64  `json:"transfer_payee_id"`
	Deleted          bool   `json:"deleted,omitempty"`
}

func (p presenter) account(a core.Account) accountView {
	return accountView{
		ID: int64(a.ID), Name: a.Name, Kind: a.Kind.String(), OnBudget: a.OnBudget, Closed: a.IsClosed,
		Liability:        a.Kind.IsLiability(),
		Note:             a.Note,
		Balance:          p.money(a.Balance),
		ClearedBalance:   p.money(a.ClearedBalance),
		UnclearedBalance: p.money(a.UnclearedBalance),
		TransferPayeeID:  int64(a.TransferPayee),
		Deleted:          a.IsDeleted,
	}
}

type payeeView struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	TransferAccountID int64  `json:"transfer_account_id,omitempty"`
	Deleted           bool   `json:"deleted,omitempty"`
}

func payee(py core.Payee) payeeView {
	return payeeView{ID: int64(py.ID), Name: py.Name, TransferAccountID: int64(py.TransferAccount), Deleted: py.IsDeleted}
}

type groupView struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Hidden      bool    `json:"hidden"`
	CategoryIDs []int64 `json:"category_ids"`
	Deleted     bool    `json:"deleted,omitempty"`
}

func group(g core.CategoryGroup) groupView {
	ids := make([]int64, len(g.Categories))
	for i, c := range g.Categories {
		ids[i] = int64(c)
	}
	return groupView{ID: int64(g.ID), Name: g.Name, Hidden: g.IsHidden, CategoryIDs: ids, Deleted: g.IsDeleted}
}

type goalView struct {
	Kind           string `json:"kind"`
	Target         *money `json:"target,omitempty"`
	ByMonth        string `json:"by_month,omitempty"`
	FundingBalance *money `json:"funding_balance,omitempty"`
	CreationMonth  string `json:"creation_month"`
}

func (p presenter) goal(g *core.Goal) *goalView {
	if g == nil {
		return nil
	}
	v := &goalView{Kind: g.Kind.String(), CreationMonth: g.CreationMonth.String()}
	switch g.Kind {
	case core.TargetCategoryBalance:
		t := p.money(g.Target)
		v.Target = &t
	case core.TargetCategoryBalanceByDate:
		t := p.money(g.Target)
		v.Target = &t
		v.ByMonth = g.ByMonth.String()
	case core.MonthlyFunding:
		f := p.money(g.FundingBalance)
		v.FundingBalance = &f
	}
	return v
}

type categoryView struct {
	ID       int64     `json:"id"`
	GroupID  int64     `json:"group_id"`
	Name     string    `json:"name"`
	Hidden   bool      `json:"hidden"`
	Note     string    `json:"note,omitempty"`
	Budgeted money     `json:"budgeted"`
	Activity money     `json:"activity"`
	Balance  money     `json:"balance"`
	Goal     *goalView `json:"goal,omitempty"`
	Deleted  bool      `json:"deleted,omitempty"`
}

func (p presenter) category(c core.Category) categoryView {
	return categoryView{
		ID: int64(c.ID), GroupID: int64(c.Group), Name: c.Name, Hidden: c.IsHidden, Note: c.Note,
		Budgeted: p.money(c.Budgeted), Activity: p.money(c.Activity), Balance: p.money(c.Balance),
		Goal: p.goal(c.Goal), Deleted: c.IsDeleted,
	}
}

type transactionView struct {
	ID                int64  `json:"id"`
	Date              string `json:"date"`
	DateDisplay       string `json:"date_display"`
	Amount            money  `json:"amount"`
	AccountID         int64  `json:"account_id"`
	PayeeID           int64  `json:"payee_id,omitempty"`
	CategoryID        int64  `json:"category_id,omitempty"`
	TransferAccountID int64  `json:"transfer_account_id,omitempty"`
	Memo              string `json:"memo,omitempty"`
	Cleared           string `json:"cleared"`
	Approved          bool   `json:"approved"`
	FlagColor         string `json:"flag_color,omitempty"`
	Deleted           bool   `json:"deleted,omitempty"`
}

func (p presenter) transaction(t core.Transaction) transactionView {
	return transactionView{
		ID: int64(t.ID), Date: t.Date.String(), DateDisplay: p.settings.FormatDate(t.Date),
		Amount:    p.money(t.Amount),
		AccountID: int64(t.Account), PayeeID: int64(t.Payee), CategoryID: int64(t.Category),
		TransferAccountID: int64(t.TransferAccount),
		Memo:              t.Memo, Cleared: t.Cleared.String(), Approved: t.Approved,
		FlagColor: string(t.FlagColor), Deleted: t.IsDeleted,
	}
}

func (p presenter) transactions(ts []core.Transaction) []transactionView {
	out := make([]transactionView, len(ts))
	for i, t := range ts {
		out[i] = p.transaction(t)
	}
	return out
}

type monthView struct {
	Month        string `json:"month"`
	Note         string `json:"note,omitempty"`
	Income       money  `json:"income"`
	Budgeted     money  `json:"budgeted"`
	Activity     money  `json:"activity"`
	ToBeBudgeted money  `json:"to_be_budgeted"`
	AgeOfMoney   *int   `json:"age_of_money,omitempty"`
}

func (p presenter) month(m core.Month) monthView {
	return monthView{
		Month: m.Month.String(), Note: m.Note,
		Income: p.money(m.Income), Budgeted: p.money(m.Budgeted), Activity: p.money(m.Activity),
		ToBeBudgeted: p.money(m.ToBeBudgeted), AgeOfMoney: m.AgeOfMoney,
	}
}

type goalProgressView struct {
	Kind              string  `json:"kind"`
	Status            string  `json:"status"`
	Fraction          float64 `json:"fraction"`
	Remaining         money   `json:"remaining"`
	RequiredThisMonth money   `json:"required_this_month"`
	Underfunded       money   `json:"underfunded"`
	MonthsRemaining   int     `json:"months_remaining"`
	Schedule          []money `json:"schedule,omitempty"`
}

func (p presenter) progress(g *goals.Progress) *goalProgressView {
	if g == nil {
		return nil
	}
	v := &goalProgressView{
		Kind: g.Kind.String(), Status: string(g.Status), Fraction: g.Fraction,
		Remaining: p.money(g.Remaining), RequiredThisMonth: p.money(g.RequiredThisMonth),
		Underfunded: p.money(g.Underfunded), MonthsRemaining: g.MonthsRemaining,
	}
	for _, s := range g.Schedule {
		v.Schedule = append(v.Schedule, p.money(s))
	}
	return v
}

type categoryMonthView struct {
	ID        int64             `json:"id"`
	GroupID   int64             `json:"group_id"`
	GroupName string            `json:"group_name"`
	Name      string            `json:"name"`
	Hidden    bool              `json:"hidden"`
	Budgeted  money             `json:"budgeted"`
	Activity  money             `json:"activity"`
	Balance   money             `json:"balance"`
	Goal      *goalProgressView `json:"goal,omitempty"`
}

type monthReportView struct {
	monthView
	Underfunded money               `json:"underfunded"`
	Categories  []categoryMonthView `json:"categories"`
}

func (p presenter) report(r ledger.MonthReport) monthReportView {
	v := monthReportView{monthView: p.month(r.Month), Underfunded: p.money(r.Underfunded)}
	v.Categories = make([]categoryMonthView, len(r.Categories))
	for i, c := range r.Categories {
		v.Categories[i] = categoryMonthView{
			ID: int64(c.Category), GroupID: int64(c.Group), GroupName: c.GroupName, Name: c.Name, Hidden: c.IsHidden,
			Budgeted: p.money(c.Budgeted), Activity: p.money(c.Activity), Balance: p.money(c.Balance),
			Goal: p.progress(c.Goal),
		}
	}
	return v
}

type dashboardView struct {
	Report   monthReportView `json:"report"`
	Accounts []accountView   `json:"accounts"`
	Months   []monthView     `json:"months"`
	OnBudget money           `json:"on_budget"`
	NetWorth money           `json:"net_worth"`
}

func (p presenter) dashboard(d services.Dashboard) dashboardView {
	v := dashboardView{Report: p.report(d.Report), OnBudget: p.money(d.OnBudget), NetWorth: p.money(d.NetWorth)}
	for _, a := range d.Accounts {
		v.Accounts = append(v.Accounts, p.account(a))
	}
	for _, m := range d.Months {
		v.Months = append(v.Months, p.month(m))
	}
	return v
}

type settingsView struct {
	DateFormat    string `json:"date_format"`
	Currency      string `json:"currency"`
	DecimalDigits int    `json:"decimal_digits"`
	DecimalSep    string `json:"decimal_separator"`
	GroupSep      string `json:"group_separator"`
	Symbol        string `json:"symbol"`
	SymbolFirst   bool   `json:"symbol_first"`
	DisplaySymbol bool   `json:"display_symbol"`
}

func settings(s core.BudgetSettings) settingsView {
	c := s.CurrencyFormat
	return settingsView{
		DateFormat: string(s.DateFormat), Currency: string(c.ISOCode), DecimalDigits: c.DecimalDigits,
		DecimalSep: string(c.DecimalSeparator), GroupSep: string(c.GroupSeparator),
		Symbol: c.Symbol, SymbolFirst: c.SymbolFirst, DisplaySymbol: c.DisplaySymbol,
	}
}
