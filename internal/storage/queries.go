package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type BudgetRow struct {
	ID                     int64
	Name                   string
	DateFormat             string
	IsoCode                string
	DecimalDigits          int64
	DecimalSeparator       string
	GroupSeparator         string
	SymbolFirst            bool
	Symbol                 string
	DisplaySymbol          bool
	InflowCategoryID       int64
	StartingBalancePayeeID int64
	NextAccountID          int64
	NextPayeeID            int64
	NextCategoryGroupID    int64
	NextCategoryID         int64
	NextTransactionID      int64
	SavedAt                string
}

type AccountRow struct {
	ID              int64
	Name            string
	Kind            string
	OnBudget        bool
	IsClosed        bool
	Note            string
	TransferPayeeID int64
	IsDeleted       bool
}

type PayeeRow struct {
	ID                int64
	Name              string
	TransferAccountID int64
	IsDeleted         bool
}

type CategoryGroupRow struct {
	ID        int64
	Name      string
	IsHidden  bool
	IsDeleted bool
}

type CategoryRow struct {
	ID                int64
	GroupID           int64
	Position          int64
	Name              string
	IsHidden          bool
	Note              string
	IsDeleted         bool
	GoalKind          sql.NullString
	GoalTarget        sql.NullInt64
	GoalByMonth       sql.NullString
	GoalFunding       sql.NullInt64
	GoalCreationMonth sql.NullString
}

type MonthRow struct {
	Month     string
	Note      string
	IsDeleted bool
}

type AllocationRow struct {
	CategoryID  int64
	Month       string
	AmountMilli int64
}

type TransactionRow struct {
	ID                int64
	Date              string
	AmountMilli       int64
	AccountID         int64
	PayeeID           int64
	CategoryID        int64
	TransferAccountID int64
	Memo              string
	Cleared           string
	Approved          bool
	FlagColor         string
	IsDeleted         bool
}

const upsertBudget = `
INSERT INTO budgets (
    name, date_format, iso_code, decimal_digits, decimal_separator, group_separator,
    symbol_first, symbol, display_symbol, inflow_category_id, starting_balance_payee_id,
    next_account_id, next_payee_id, next_category_group_id, next_category_id,
    next_transaction_id, saved_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    date_format = excluded.date_format,
    iso_code = excluded.iso_code,
    decimal_digits = excluded.decimal_digits,
    decimal_separator = excluded.decimal_separator,
    group_separator = excluded.group_separator,
    symbol_first = excluded.symbol_first,
    symbol = excluded.symbol,
    display_symbol = excluded.display_symbol,
    inflow_category_id = excluded.inflow_category_id,
    starting_balance_payee_id = excluded.starting_balance_payee_id,
    next_account_id = excluded.next_account_id,
    next_payee_id = excluded.next_payee_id,
    next_category_group_id = excluded.next_category_group_id,
    next_category_id = excluded.next_category_id,
    next_transaction_id = excluded.next_transaction_id,
    saved_at = excluded.saved_at
RETURNING id`

func (q *Queries) UpsertBudget(ctx context.Context, b BudgetRow) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertBudget,
		b.Name, b.DateFormat, b.IsoCode, b.DecimalDigits, b.DecimalSeparator, b.GroupSeparator,
		b.SymbolFirst, b.Symbol, b.DisplaySymbol, b.InflowCategoryID, b.StartingBalancePayeeID,
		b.NextAccountID, b.NextPayeeID, b.NextCategoryGroupID, b.NextCategoryID,
		b.NextTransactionID, b.SavedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getBudget = `
SELECT id, name, date_format, iso_code, decimal_digits, decimal_separator, group_separator,
       symbol_first, symbol, display_symbol, inflow_category_id, starting_balance_payee_id,
       next_account_id, next_payee_id, next_category_group_id, next_category_id,
       next_transaction_id, saved_at
FROM budgets WHERE name = ?`

func (q *Queries) GetBudget(ctx context.Context, name string) (BudgetRow, error) {
	row := q.db.QueryRowContext(ctx, getBudget, name)
	var b BudgetRow
	err := row.Scan(&b.ID, &b.Name, &b.DateFormat, &b.IsoCode, &b.DecimalDigits, &b.DecimalSeparator,
		&b.GroupSeparator, &b.SymbolFirst, &b.Symbol, &b.DisplaySymbol, &b.InflowCategoryID,
		&b.StartingBalancePayeeID, &b.NextAccountID, &b.NextPayeeID, &b.NextCategoryGroupID,
		&b.NextCategoryID, &b.NextTransactionID, &b.SavedAt)
	return b, err
}

const listBudgetNames = `SELECT name FROM budgets ORDER BY name`

func (q *Queries) ListBudgetNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	return items, rows.Err()
}

var budgetTables = []string{"transactions", "allocations", "months", "categories", "category_groups", "payees", "accounts"}

// ClearBudget removes every row owned by the budget except the budgets row.
func (q *Queries) ClearBudget(ctx context.Context, budgetID int64) error {
	for _, table := range budgetTables {
		if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE budget_id = ?", budgetID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

const insertAccount = `
INSERT INTO accounts (budget_id, id, name, kind, on_budget, is_closed, note, transfer_payee_id, is_deleted)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertAccount(ctx context.Context, budgetID int64, a AccountRow) error {
	_, err := q.db.ExecContext(ctx, insertAccount, budgetID, a.ID, a.Name, a.Kind, a.OnBudget, a.IsClosed, a.Note, a.TransferPayeeID, a.IsDeleted)
	return err
}

const listAccounts = `
SELECT id, name, kind, on_budget, is_closed, note, transfer_payee_id, is_deleted
FROM accounts WHERE budget_id = ? ORDER BY id`

func (q *Queries) ListAccounts(ctx context.Context, budgetID int64) ([]AccountRow, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AccountRow
	for rows.Next() {
		var i AccountRow
		if err := rows.Scan(&i.ID, &i.Name, &i.Kind, &i.OnBudget, &i.IsClosed, &i.Note, &i.TransferPayeeID, &i.IsDeleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertPayee = `
INSERT INTO payees (budget_id, id, name, transfer_account_id, is_deleted) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertPayee(ctx context.Context, budgetID int64, p PayeeRow) error {
	_, err := q.db.ExecContext(ctx, insertPayee, budgetID, p.ID, p.Name, p.TransferAccountID, p.IsDeleted)
	return err
}

const listPayees = `
SELECT id, name, transfer_account_id, is_deleted FROM payees WHERE budget_id = ? ORDER BY id`

func (q *Queries) ListPayees(ctx context.Context, budgetID int64) ([]PayeeRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayees, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PayeeRow
	for rows.Next() {
		var i PayeeRow
		if err := rows.Scan(&i.ID, &i.Name, &i.TransferAccountID, &i.IsDeleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertCategoryGroup = `
INSERT INTO category_groups (budget_id, id, name, is_hidden, is_deleted) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertCategoryGroup(ctx context.Context, budgetID int64, g CategoryGroupRow) error {
	_, err := q.db.ExecContext(ctx, insertCategoryGroup, budgetID, g.ID, g.Name, g.IsHidden, g.IsDeleted)
	return err
}

const listCategoryGroups = `
SELECT id, name, is_hidden, is_deleted FROM category_groups WHERE budget_id = ? ORDER BY id`

func (q *Queries) ListCategoryGroups(ctx context.Context, budgetID int64) ([]CategoryGroupRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategoryGroups, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryGroupRow
	for rows.Next() {
		var i CategoryGroupRow
		if err := rows.Scan(&i.ID, &i.Name, &i.IsHidden, &i.IsDeleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertCategory = `
INSERT INTO categories (
    budget_id, id, group_id, position, name, is_hidden, note, is_deleted,
    goal_kind, goal_target, goal_by_month, goal_funding, goal_creation_month
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertCategory(ctx context.Context, budgetID int64, c CategoryRow) error {
	_, err := q.db.ExecContext(ctx, insertCategory, budgetID, c.ID, c.GroupID, c.Position, c.Name, c.IsHidden, c.Note, c.IsDeleted,
		c.GoalKind, c.GoalTarget, c.GoalByMonth, c.GoalFunding, c.GoalCreationMonth)
	return err
}

const listCategories = `
SELECT id, group_id, position, name, is_hidden, note, is_deleted,
       goal_kind, goal_target, goal_by_month, goal_funding, goal_creation_month
FROM categories WHERE budget_id = ? ORDER BY id`

func (q *Queries) ListCategories(ctx context.Context, budgetID int64) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var i CategoryRow
		if err := rows.Scan(&i.ID, &i.GroupID, &i.Position, &i.Name, &i.IsHidden, &i.Note, &i.IsDeleted,
			&i.GoalKind, &i.GoalTarget, &i.GoalByMonth, &i.GoalFunding, &i.GoalCreationMonth); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertMonth = `INSERT INTO months (budget_id, month, note, is_deleted) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertMonth(ctx context.Context, budgetID int64, m MonthRow) error {
	_, err := q.db.ExecContext(ctx, insertMonth, budgetID, m.Month, m.Note, m.IsDeleted)
	return err
}

const listMonths = `SELECT month, note, is_deleted FROM months WHERE budget_id = ? ORDER BY month`

func (q *Queries) ListMonths(ctx context.Context, budgetID int64) ([]MonthRow, error) {
	rows, err := q.db.QueryContext(ctx, listMonths, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthRow
	for rows.Next() {
		var i MonthRow
		if err := rows.Scan(&i.Month, &i.Note, &i.IsDeleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertAllocation = `INSERT INTO allocations (budget_id, category_id, month, amount_milli) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertAllocation(ctx context.Context, budgetID int64, a AllocationRow) error {
	_, err := q.db.ExecContext(ctx, insertAllocation, budgetID, a.CategoryID, a.Month, a.AmountMilli)
	return err
}

const listAllocations = `
SELECT category_id, month, amount_milli FROM allocations WHERE budget_id = ? ORDER BY month, category_id`

func (q *Queries) ListAllocations(ctx context.Context, budgetID int64) ([]AllocationRow, error) {
	rows, err := q.db.QueryContext(ctx, listAllocations, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AllocationRow
	for rows.Next() {
		var i AllocationRow
		if err := rows.Scan(&i.CategoryID, &i.Month, &i.AmountMilli); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertTransaction = `
INSERT INTO transactions (
    budget_id, id, date, amount_milli, account_id, payee_id, category_id,
    transfer_account_id, memo, cleared, approved, flag_color, is_deleted
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, budgetID int64, t TransactionRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction, budgetID, t.ID, t.Date, t.AmountMilli, t.AccountID, t.PayeeID,
		t.CategoryID, t.TransferAccountID, t.Memo, t.Cleared, t.Approved, t.FlagColor, t.IsDeleted)
	return err
}

const listTransactions = `
SELECT id, date, amount_milli, account_id, payee_id, category_id, transfer_account_id,
       memo, cleared, approved, flag_color, is_deleted
FROM transactions WHERE budget_id = ? ORDER BY id`

func (q *Queries) ListTransactions(ctx context.Context, budgetID int64) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.Date, &i.AmountMilli, &i.AccountID, &i.PayeeID, &i.CategoryID, &i.TransferAccountID,
			&i.Memo, &i.Cleared, &i.Approved, &i.FlagColor, &i.IsDeleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
