package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"envelope/internal/core"
	"envelope/internal/ledger"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// ErrNoSnapshot is returned by LoadSnapshot when nothing was saved under the name.
var ErrNoSnapshot = errors.New("no saved budget")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveSnapshot replaces everything stored for the snapshot's budget in a
// single transaction. Derived amounts are not stored.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	cf := snap.Settings.CurrencyFormat
	budgetID, err := q.UpsertBudget(ctx, BudgetRow{
		Name:                   snap.Name,
		DateFormat:             string(snap.Settings.DateFormat),
		IsoCode:                string(cf.ISOCode),
		DecimalDigits:          int64(cf.DecimalDigits),
		DecimalSeparator:       string(cf.DecimalSeparator),
		GroupSeparator:         string(cf.GroupSeparator),
		SymbolFirst:            cf.SymbolFirst,
		Symbol:                 cf.Symbol,
		DisplaySymbol:          cf.DisplaySymbol,
		InflowCategoryID:       int64(snap.InflowCategory),
		StartingBalancePayeeID: int64(snap.StartingBalancePayee),
		NextAccountID:          int64(snap.NextIDs.Account),
		NextPayeeID:            int64(snap.NextIDs.Payee),
		NextCategoryGroupID:    int64(snap.NextIDs.CategoryGroup),
		NextCategoryID:         int64(snap.NextIDs.Category),
		NextTransactionID:      int64(snap.NextIDs.Transaction),
		SavedAt:                r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	if err := q.ClearBudget(ctx, budgetID); err != nil {
		return err
	}

	for _, a := range snap.Accounts {
		if err := q.InsertAccount(ctx, budgetID, AccountRow{
			ID: int64(a.ID), Name: a.Name, Kind: a.Kind.String(), OnBudget: a.OnBudget, IsClosed: a.IsClosed,
			Note: a.Note, TransferPayeeID: int64(a.TransferPayee), IsDeleted: a.IsDeleted,
		}); err != nil {
			return fmt.Errorf("insert account %d: %w", a.ID, err)
		}
	}
	for _, p := range snap.Payees {
		if err := q.InsertPayee(ctx, budgetID, PayeeRow{
			ID: int64(p.ID), Name: p.Name, TransferAccountID: int64(p.TransferAccount), IsDeleted: p.IsDeleted,
		}); err != nil {
			return fmt.Errorf("insert payee %d: %w", p.ID, err)
		}
	}

	position := make(map[core.CategoryID]int64)
	for _, g := range snap.CategoryGroups {
		if err := q.InsertCategoryGroup(ctx, budgetID, CategoryGroupRow{
			ID: int64(g.ID), Name: g.Name, IsHidden: g.IsHidden, IsDeleted: g.IsDeleted,
		}); err != nil {
			return fmt.Errorf("insert category group %d: %w", g.ID, err)
		}
		for i, id := range g.Categories {
			position[id] = int64(i)
		}
	}
	for _, c := range snap.Categories {
		row := CategoryRow{
			ID: int64(c.ID), GroupID: int64(c.Group), Position: position[c.ID], Name: c.Name,
			IsHidden: c.IsHidden, Note: c.Note, IsDeleted: c.IsDeleted,
		}
		if g := c.Goal; g != nil {
			row.GoalKind = sql.NullString{String: g.Kind.String(), Valid: true}
			row.GoalTarget = sql.NullInt64{Int64: int64(g.Target), Valid: true}
			row.GoalByMonth = sql.NullString{String: g.ByMonth.String(), Valid: g.Kind == core.TargetCategoryBalanceByDate}
			row.GoalFunding = sql.NullInt64{Int64: int64(g.FundingBalance), Valid: true}
			row.GoalCreationMonth = sql.NullString{String: g.CreationMonth.String(), Valid: true}
		}
		if err := q.InsertCategory(ctx, budgetID, row); err != nil {
			return fmt.Errorf("insert category %d: %w", c.ID, err)
		}
	}

	for _, m := range snap.Months {
		if err := q.InsertMonth(ctx, budgetID, MonthRow{Month: m.Month.String(), Note: m.Note, IsDeleted: m.IsDeleted}); err != nil {
			return fmt.Errorf("insert month %s: %w", m.Month, err)
		}
	}
	for _, a := range snap.Allocations {
		if err := q.InsertAllocation(ctx, budgetID, AllocationRow{
			CategoryID: int64(a.Category), Month: a.Month.String(), AmountMilli: a.Amount.Milliunits(),
		}); err != nil {
			return fmt.Errorf("insert allocation %d/%s: %w", a.Category, a.Month, err)
		}
	}
	for _, t := range snap.Transactions {
		if err := q.InsertTransaction(ctx, budgetID, TransactionRow{
			ID: int64(t.ID), Date: t.Date.Format(dateLayout), AmountMilli: t.Amount.Milliunits(),
			AccountID: int64(t.Account), PayeeID: int64(t.Payee), CategoryID: int64(t.Category),
			TransferAccountID: int64(t.TransferAccount), Memo: t.Memo, Cleared: t.Cleared.String(),
			Approved: t.Approved, FlagColor: string(t.FlagColor), IsDeleted: t.IsDeleted,
		}); err != nil {
			return fmt.Errorf("insert transaction %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Budget snapshot saved",
		"budget", snap.Name,
		"accounts", len(snap.Accounts),
		"transactions", len(snap.Transactions),
		"months", len(snap.Months))
	return nil
}

// LoadSnapshot reads the stored state of the named budget. The result has no
// derived amounts; pass it to ledger.Restore to rebuild them.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, name string) (ledger.Snapshot, error) {
	b, err := r.queries.GetBudget(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("%q: %w", name, ErrNoSnapshot)
	}
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("get budget: %w", err)
	}

	snap := ledger.Snapshot{
		Name: b.Name,
		Settings: core.BudgetSettings{
			DateFormat: core.DateFormat(b.DateFormat),
			CurrencyFormat: core.CurrencyFormat{
				ISOCode:          core.CurrencyISOCode(b.IsoCode),
				DecimalDigits:    int(b.DecimalDigits),
				DecimalSeparator: core.Separator(b.DecimalSeparator),
				GroupSeparator:   core.Separator(b.GroupSeparator),
				SymbolFirst:      b.SymbolFirst,
				Symbol:           b.Symbol,
				DisplaySymbol:    b.DisplaySymbol,
			},
		},
		InflowCategory:       core.CategoryID(b.InflowCategoryID),
		StartingBalancePayee: core.PayeeID(b.StartingBalancePayeeID),
		NextIDs: ledger.NextIDs{
			Account:       core.AccountID(b.NextAccountID),
			Payee:         core.PayeeID(b.NextPayeeID),
			CategoryGroup: core.CategoryGroupID(b.NextCategoryGroupID),
			Category:      core.CategoryID(b.NextCategoryID),
			Transaction:   core.TransactionID(b.NextTransactionID),
		},
	}

	accounts, err := r.queries.ListAccounts(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		kind, err := core.ParseAccountKind(a.Kind)
		if err != nil {
			return snap, fmt.Errorf("account %d: %w", a.ID, err)
		}
		snap.Accounts = append(snap.Accounts, core.Account{
			ID: core.AccountID(a.ID), Name: a.Name, Kind: kind, OnBudget: a.OnBudget, IsClosed: a.IsClosed,
			Note: a.Note, TransferPayee: core.PayeeID(a.TransferPayeeID), IsDeleted: a.IsDeleted,
		})
	}

	payees, err := r.queries.ListPayees(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list payees: %w", err)
	}
	for _, p := range payees {
		snap.Payees = append(snap.Payees, core.Payee{
			ID: core.PayeeID(p.ID), Name: p.Name, TransferAccount: core.AccountID(p.TransferAccountID), IsDeleted: p.IsDeleted,
		})
	}

	groups, err := r.queries.ListCategoryGroups(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list category groups: %w", err)
	}
	groupIndex := make(map[core.CategoryGroupID]int, len(groups))
	for i, g := range groups {
		groupIndex[core.CategoryGroupID(g.ID)] = i
		snap.CategoryGroups = append(snap.CategoryGroups, core.CategoryGroup{
			ID: core.CategoryGroupID(g.ID), Name: g.Name, IsHidden: g.IsHidden, IsDeleted: g.IsDeleted,
		})
	}

	categories, err := r.queries.ListCategories(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range categories {
		cat := core.Category{
			ID: core.CategoryID(c.ID), Group: core.CategoryGroupID(c.GroupID), Name: c.Name,
			IsHidden: c.IsHidden, Note: c.Note, IsDeleted: c.IsDeleted,
		}
		if c.GoalKind.Valid {
			g, err := goalFromRow(c)
			if err != nil {
				return snap, fmt.Errorf("category %d goal: %w", c.ID, err)
			}
			cat.Goal = &g
		}
		snap.Categories = append(snap.Categories, cat)
	}
	ordered := append([]CategoryRow(nil), categories...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].GroupID != ordered[j].GroupID {
			return ordered[i].GroupID < ordered[j].GroupID
		}
		return ordered[i].Position < ordered[j].Position
	})
	for _, c := range ordered {
		gi, ok := groupIndex[core.CategoryGroupID(c.GroupID)]
		if !ok {
			return snap, fmt.Errorf("category %d belongs to unknown group %d", c.ID, c.GroupID)
		}
		snap.CategoryGroups[gi].Categories = append(snap.CategoryGroups[gi].Categories, core.CategoryID(c.ID))
	}

	months, err := r.queries.ListMonths(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list months: %w", err)
	}
	for _, m := range months {
		key, err := core.ParseMonthKey(m.Month)
		if err != nil {
			return snap, fmt.Errorf("month %q: %w", m.Month, err)
		}
		snap.Months = append(snap.Months, core.Month{Month: key, Note: m.Note, IsDeleted: m.IsDeleted})
	}

	allocations, err := r.queries.ListAllocations(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list allocations: %w", err)
	}
	for _, a := range allocations {
		key, err := core.ParseMonthKey(a.Month)
		if err != nil {
			return snap, fmt.Errorf("allocation month %q: %w", a.Month, err)
		}
		snap.Allocations = append(snap.Allocations, ledger.Allocation{
			Category: core.CategoryID(a.CategoryID), Month: key, Amount: core.Money(a.AmountMilli),
		})
	}

	transactions, err := r.queries.ListTransactions(ctx, b.ID)
	if err != nil {
		return snap, fmt.Errorf("list transactions: %w", err)
	}
	for _, t := range transactions {
		day, err := time.Parse(dateLayout, t.Date)
		if err != nil {
			return snap, fmt.Errorf("transaction %d date: %w", t.ID, err)
		}
		cleared, err := core.ParseClearedStatus(t.Cleared)
		if err != nil {
			return snap, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		snap.Transactions = append(snap.Transactions, core.Transaction{
			ID: core.TransactionID(t.ID), Date: core.DateOf(day), Amount: core.Money(t.AmountMilli),
			Account: core.AccountID(t.AccountID), Payee: core.PayeeID(t.PayeeID), Category: core.CategoryID(t.CategoryID),
			TransferAccount: core.AccountID(t.TransferAccountID), Memo: t.Memo, Cleared: cleared,
			Approved: t.Approved, FlagColor: core.FlagColor(t.FlagColor), IsDeleted: t.IsDeleted,
		})
	}

	slog.InfoContext(ctx, "Budget snapshot loaded",
		"budget", snap.Name,
		"saved_at", b.SavedAt,
		"transactions", len(snap.Transactions))
	return snap, nil
}

// LoadBudget loads and restores the named budget.
func (r *SQLiteRepository) LoadBudget(ctx context.Context, name string) (*ledger.Budget, error) {
	snap, err := r.LoadSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	return ledger.Restore(snap)
}

// ListBudgets returns the names of all saved budgets.
func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]string, error) {
	names, err := r.queries.ListBudgetNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return names, nil
}

func goalFromRow(c CategoryRow) (core.Goal, error) {
	kind, err := core.ParseGoalKind(c.GoalKind.String)
	if err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{Kind: kind, Target: core.Money(c.GoalTarget.Int64), FundingBalance: core.Money(c.GoalFunding.Int64)}
	if c.GoalByMonth.Valid {
		if g.ByMonth, err = core.ParseMonthKey(c.GoalByMonth.String); err != nil {
			return g, err
		}
	}
	if c.GoalCreationMonth.Valid {
		if g.CreationMonth, err = core.ParseMonthKey(c.GoalCreationMonth.String); err != nil {
			return g, err
		}
	}
	return g, nil
}
