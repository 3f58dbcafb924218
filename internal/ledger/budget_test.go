package ledger

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"envelope/internal/core"
	"envelope/internal/goals"
)

var (
	jan = core.NewMonthKey(2024, 1)
	feb = jan.Next()
	mar = feb.Next()
)

func day(m core.MonthKey, d int) core.Date {
	return core.NewDate(m.Year(), m.Month(), d)
}

type fixture struct {
	b        *Budget
	checking core.AccountID
	bills    core.CategoryGroupID
	rent     core.CategoryID
	food     core.CategoryID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b, err := WithName("B")
	if err != nil {
		t.Fatalf("WithName: %v", err)
	}
	if err := b.AdvanceMonth(jan); err != nil {
		t.Fatalf("AdvanceMonth: %v", err)
	}
	f := fixture{b: b}
	f.checking = mustAccount(t, b, NewAccount{Name: "Checking", Kind: core.Checking, OnBudget: true})
	if f.bills, err = b.AddCategoryGroup("Bills"); err != nil {
		t.Fatalf("AddCategoryGroup: %v", err)
	}
	if f.rent, err = b.AddCategory(f.bills, "Rent"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if f.food, err = b.AddCategory(f.bills, "Food"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	return f
}

func mustAccount(t *testing.T, b *Budget, na NewAccount) core.AccountID {
	t.Helper()
	id, err := b.AddAccount(na)
	if err != nil {
		t.Fatalf("AddAccount(%s): %v", na.Name, err)
	}
	return id
}

func mustRecord(t *testing.T, b *Budget, tx core.Transaction) core.Transaction {
	t.Helper()
	posted, err := b.RecordTransaction(tx)
	if err != nil {
		t.Fatalf("RecordTransaction(%+v): %v", tx, err)
	}
	return posted
}

func mustVerify(t *testing.T, b *Budget) {
	t.Helper()
	if err := b.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func (f fixture) income(t *testing.T, amount core.Money, d core.Date) core.Transaction {
	t.Helper()
	return mustRecord(t, f.b, core.Transaction{
		Date: d, Amount: amount, Account: f.checking, Category: f.b.InflowCategory(), Cleared: core.Cleared,
	})
}

func TestAccountBalanceRouting(t *testing.T) {
	f := newFixture(t)

	f.income(t, 200000, day(jan, 2))
	a, _ := f.b.Account(f.checking, ActiveOnly)
	if a.Balance != 200000 || a.ClearedBalance != 200000 || a.UnclearedBalance != 0 {
		t.Fatalf("after inflow: %d/%d/%d", a.Balance, a.ClearedBalance, a.UnclearedBalance)
	}

	mustRecord(t, f.b, core.Transaction{
		Date: day(jan, 3), Amount: -150000, Account: f.checking, Category: f.rent, Cleared: core.Uncleared,
	})
	a, _ = f.b.Account(f.checking, ActiveOnly)
	if a.Balance != 50000 || a.ClearedBalance != 200000 || a.UnclearedBalance != -150000 {
		t.Fatalf("after outflow: %d/%d/%d", a.Balance, a.ClearedBalance, a.UnclearedBalance)
	}

	m, _ := f.b.Month(jan)
	if m.Income != 200000 || m.Activity != -150000 || m.ToBeBudgeted != 200000 {
		t.Fatalf("month: income %d activity %d tbb %d", m.Income, m.Activity, m.ToBeBudgeted)
	}
	mustVerify(t, f.b)
}

func TestUnsetClearedStatusIsUncleared(t *testing.T) {
	f := newFixture(t)
	f.income(t, 10000, day(jan, 2))

	tx, err := f.b.RecordTransaction(core.Transaction{
		Date: day(jan, 4), Amount: -2500, Account: f.checking, Category: f.rent,
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if tx.Cleared != core.Uncleared {
		t.Errorf("Cleared = %v, want uncleared", tx.Cleared)
	}
	a, _ := f.b.Account(f.checking, ActiveOnly)
	if a.ClearedBalance != 10000 || a.UnclearedBalance != -2500 {
		t.Fatalf("cleared %d uncleared %d", a.ClearedBalance, a.UnclearedBalance)
	}
	mustVerify(t, f.b)
}

func TestCategoryCarryForward(t *testing.T) {
	f := newFixture(t)

	if err := f.b.SetCategoryBudgeted(f.rent, jan, 100000); err != nil {
		t.Fatalf("SetCategoryBudgeted: %v", err)
	}
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 5), Amount: -40000, Account: f.checking, Category: f.rent, Cleared: core.Cleared})
	if cm, _ := f.b.CategoryMonth(f.rent, jan); cm.Balance != 60000 {
		t.Fatalf("jan balance %d, want 60000", cm.Balance)
	}

	if err := f.b.AdvanceMonth(feb); err != nil {
		t.Fatalf("AdvanceMonth: %v", err)
	}
	mustRecord(t, f.b, core.Transaction{Date: day(feb, 5), Amount: -10000, Account: f.checking, Category: f.rent, Cleared: core.Cleared})

	cm, _ := f.b.CategoryMonth(f.rent, feb)
	if cm.Budgeted != 0 || cm.Activity != -10000 || cm.Balance != 50000 {
		t.Fatalf("feb: %d/%d/%d", cm.Budgeted, cm.Activity, cm.Balance)
	}
	if cm, _ := f.b.CategoryMonth(f.rent, jan); cm.Balance != 60000 {
		t.Fatalf("jan balance changed to %d", cm.Balance)
	}
	c, _ := f.b.Category(f.rent, ActiveOnly)
	if c.Balance != 50000 || c.Activity != -10000 {
		t.Fatalf("category reports %d/%d, want latest month values", c.Activity, c.Balance)
	}
	mustVerify(t, f.b)
}

func TestLateTransactionCarriesIntoLaterMonths(t *testing.T) {
	f := newFixture(t)
	for _, m := range []core.MonthKey{feb, mar} {
		if err := f.b.AdvanceMonth(m); err != nil {
			t.Fatal(err)
		}
	}

	f.income(t, 90000, day(jan, 28))
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 30), Amount: -7000, Account: f.checking, Category: f.food, Cleared: core.Cleared})

	for _, m := range []core.MonthKey{jan, feb, mar} {
		month, _ := f.b.Month(m)
		if month.ToBeBudgeted != 90000 {
			t.Errorf("%s: tbb %d, want 90000", m, month.ToBeBudgeted)
		}
		cm, _ := f.b.CategoryMonth(f.food, m)
		if cm.Balance != -7000 {
			t.Errorf("%s: food balance %d, want -7000", m, cm.Balance)
		}
	}
	if m, _ := f.b.Month(feb); m.Income != 0 || m.Activity != 0 {
		t.Errorf("feb totals touched: income %d activity %d", m.Income, m.Activity)
	}
	mustVerify(t, f.b)
}

func TestSetBudgetedPropagation(t *testing.T) {
	f := newFixture(t)
	f.income(t, 300000, day(jan, 1))
	for _, m := range []core.MonthKey{feb, mar} {
		if err := f.b.AdvanceMonth(m); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.b.SetCategoryBudgeted(f.rent, jan, 100000); err != nil {
		t.Fatal(err)
	}
	if err := f.b.SetCategoryBudgeted(f.rent, feb, 20000); err != nil {
		t.Fatal(err)
	}
	// Lowering January afterwards moves every later month.
	if err := f.b.SetCategoryBudgeted(f.rent, jan, 50000); err != nil {
		t.Fatal(err)
	}

	want := map[core.MonthKey]struct{ tbb, balance core.Money }{
		jan: {250000, 50000},
		feb: {230000, 70000},
		mar: {230000, 70000},
	}
	for m, w := range want {
		month, _ := f.b.Month(m)
		cm, _ := f.b.CategoryMonth(f.rent, m)
		if month.ToBeBudgeted != w.tbb || cm.Balance != w.balance {
			t.Errorf("%s: tbb %d balance %d, want %d %d", m, month.ToBeBudgeted, cm.Balance, w.tbb, w.balance)
		}
	}
	if m, _ := f.b.Month(jan); m.Budgeted != 50000 {
		t.Errorf("jan budgeted %d", m.Budgeted)
	}

	if err := f.b.SetCategoryBudgeted(f.b.InflowCategory(), jan, 1000); !errors.Is(err, core.ErrInvalidAllocation) {
		t.Errorf("budgeting inflow: got %v", err)
	}
	if err := f.b.SetCategoryBudgeted(f.rent, mar+1, 1000); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("budgeting unknown month: got %v", err)
	}
	if err := f.b.SetCategoryBudgeted(999, jan, 1000); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("budgeting unknown category: got %v", err)
	}
	mustVerify(t, f.b)
}

func TestAdvanceMonth(t *testing.T) {
	f := newFixture(t)
	f.income(t, 1000, day(jan, 1))

	tests := []struct {
		name string
		key  core.MonthKey
	}{
		{"existing month", jan},
		{"earlier month", jan.Prev()},
		{"gap", jan + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.b.AdvanceMonth(tt.key); !errors.Is(err, core.ErrMonthOutOfOrder) {
				t.Fatalf("got %v, want ErrMonthOutOfOrder", err)
			}
		})
	}

	if err := f.b.AdvanceMonth(feb); err != nil {
		t.Fatal(err)
	}
	m, _ := f.b.Month(feb)
	if m.ToBeBudgeted != 1000 || m.Income != 0 || m.Budgeted != 0 || m.Activity != 0 {
		t.Fatalf("new month %+v", m)
	}
	if got := len(f.b.Months()); got != 2 {
		t.Fatalf("%d months", got)
	}
}

func TestStoreAddMonth(t *testing.T) {
	s := NewStore()
	if err := s.AddMonth(mar); err != nil {
		t.Fatalf("first month: %v", err)
	}
	if err := s.AddMonth(mar); !errors.Is(err, core.ErrMonthOutOfOrder) {
		t.Fatalf("repeat month: got %v", err)
	}
	if err := s.AddMonth(mar.Next()); err != nil {
		t.Fatalf("following month: %v", err)
	}
}

func TestRecordTransactionRejects(t *testing.T) {
	f := newFixture(t)
	tracking := mustAccount(t, f.b, NewAccount{Name: "Mortgage", Kind: core.OtherLiability})
	closed := mustAccount(t, f.b, NewAccount{Name: "Old", Kind: core.Savings, OnBudget: true})
	if err := f.b.CloseAccount(closed); err != nil {
		t.Fatal(err)
	}
	ok := core.Transaction{Date: day(jan, 4), Amount: -100, Account: f.checking, Category: f.rent, Cleared: core.Cleared}

	tests := []struct {
		name   string
		mutate func(*core.Transaction)
		want   error
	}{
		{"unknown account", func(tx *core.Transaction) { tx.Account = 99 }, core.ErrNotFound},
		{"unknown category", func(tx *core.Transaction) { tx.Category = 99 }, core.ErrNotFound},
		{"unknown payee", func(tx *core.Transaction) { tx.Payee = 99 }, core.ErrNotFound},
		{"month not created", func(tx *core.Transaction) { tx.Date = day(feb, 1) }, core.ErrNotFound},
		{"closed account", func(tx *core.Transaction) { tx.Account = closed }, core.ErrClosedAccount},
		{"transfer to closed account", func(tx *core.Transaction) { tx.Category = 0; tx.TransferAccount = closed }, core.ErrClosedAccount},
		{"transfer with category", func(tx *core.Transaction) { tx.TransferAccount = tracking }, core.ErrInvalidTransaction},
		{"missing category", func(tx *core.Transaction) { tx.Category = 0 }, core.ErrInvalidTransaction},
		{"category on tracking account", func(tx *core.Transaction) { tx.Account = tracking }, core.ErrInvalidTransaction},
		{"bad cleared status", func(tx *core.Transaction) { tx.Cleared = 9 }, core.ErrInvalidTransaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.b.Snapshot()
			tx := ok
			tt.mutate(&tx)
			if _, err := f.b.RecordTransaction(tx); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if after := f.b.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Fatal("failed transaction changed the budget")
			}
		})
	}
}

func TestTransfersDoNotTouchCategoriesOrMonths(t *testing.T) {
	f := newFixture(t)
	savings := mustAccount(t, f.b, NewAccount{Name: "Savings", Kind: core.Savings, OnBudget: true})
	f.income(t, 50000, day(jan, 1))
	if err := f.b.SetCategoryBudgeted(f.rent, jan, 20000); err != nil {
		t.Fatal(err)
	}
	before := f.b.Snapshot()

	posted := mustRecord(t, f.b, core.Transaction{
		Date: day(jan, 9), Amount: -30000, Account: f.checking, TransferAccount: savings, Cleared: core.Uncleared,
	})
	sav, _ := f.b.Account(savings, ActiveOnly)
	if posted.Payee != sav.TransferPayee {
		t.Fatalf("transfer payee %d, want %d", posted.Payee, sav.TransferPayee)
	}

	// The same transfer addressed only through the payee.
	chk, _ := f.b.Account(f.checking, ActiveOnly)
	viaPayee := mustRecord(t, f.b, core.Transaction{
		Date: day(jan, 10), Amount: -5000, Account: savings, Payee: chk.TransferPayee, Cleared: core.Cleared,
	})
	if viaPayee.TransferAccount != f.checking {
		t.Fatalf("payee did not resolve transfer account: %+v", viaPayee)
	}

	after := f.b.Snapshot()
	if !reflect.DeepEqual(before.Months, after.Months) || !reflect.DeepEqual(before.CategoryMonths, after.CategoryMonths) {
		t.Fatal("transfer touched categories or months")
	}
	chk, _ = f.b.Account(f.checking, ActiveOnly)
	sav, _ = f.b.Account(savings, ActiveOnly)
	if chk.Balance != 25000 || chk.UnclearedBalance != -30000 || chk.ClearedBalance != 55000 {
		t.Fatalf("checking %d/%d/%d", chk.Balance, chk.ClearedBalance, chk.UnclearedBalance)
	}
	if sav.Balance != 25000 || sav.UnclearedBalance != 30000 || sav.ClearedBalance != -5000 {
		t.Fatalf("savings %d/%d/%d", sav.Balance, sav.ClearedBalance, sav.UnclearedBalance)
	}
	mustVerify(t, f.b)
}

func TestCommitReverseRoundTrip(t *testing.T) {
	f := newFixture(t)
	savings := mustAccount(t, f.b, NewAccount{Name: "Savings", Kind: core.Savings, OnBudget: true})
	loan := mustAccount(t, f.b, NewAccount{Name: "Loan", Kind: core.LineOfCredit})
	if err := f.b.AdvanceMonth(feb); err != nil {
		t.Fatal(err)
	}
	f.income(t, 123457, day(jan, 1))

	txs := []core.Transaction{
		{Date: day(jan, 2), Amount: 777777, Account: f.checking, Category: f.b.InflowCategory(), Cleared: core.Reconciled},
		{Date: day(jan, 3), Amount: -33333, Account: f.checking, Category: f.rent, Cleared: core.Uncleared},
		{Date: day(feb, 3), Amount: 1, Account: f.checking, Category: f.food, Cleared: core.Cleared},
		{Date: day(jan, 4), Amount: -999, Account: f.checking, TransferAccount: savings, Cleared: core.Cleared},
		{Date: day(feb, 4), Amount: 4242, Account: loan, Cleared: core.Uncleared},
		{Date: day(feb, 5), Amount: -500, Account: savings, TransferAccount: loan, Cleared: core.Uncleared},
	}

	for _, tx := range txs {
		before := f.b.Snapshot()
		posted, err := f.b.store.Commit(tx)
		if err != nil {
			t.Fatalf("Commit(%+v): %v", tx, err)
		}
		if err := f.b.store.Reverse(posted); err != nil {
			t.Fatalf("Reverse: %v", err)
		}
		if after := f.b.Snapshot(); !reflect.DeepEqual(before, after) {
			t.Fatalf("commit then reverse of %+v is not the identity", tx)
		}
	}
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	f := newFixture(t)
	f.income(t, 100000, day(jan, 1))
	tx := mustRecord(t, f.b, core.Transaction{Date: day(jan, 2), Amount: -20000, Account: f.checking, Category: f.rent, Cleared: core.Uncleared})

	edit := tx
	edit.Amount = -25000
	edit.Category = f.food
	edit.Cleared = core.Cleared
	if _, err := f.b.UpdateTransaction(tx.ID, edit); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	rent, _ := f.b.CategoryMonth(f.rent, jan)
	food, _ := f.b.CategoryMonth(f.food, jan)
	if rent.Activity != 0 || food.Activity != -25000 {
		t.Fatalf("activity rent %d food %d", rent.Activity, food.Activity)
	}
	a, _ := f.b.Account(f.checking, ActiveOnly)
	if a.ClearedBalance != 75000 || a.UnclearedBalance != 0 {
		t.Fatalf("account %d/%d", a.ClearedBalance, a.UnclearedBalance)
	}

	before := f.b.Snapshot()
	bad := edit
	bad.Category = 999
	if _, err := f.b.UpdateTransaction(tx.ID, bad); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("bad update: %v", err)
	}
	if after := f.b.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatal("failed update changed the budget")
	}

	if err := f.b.DeleteTransaction(tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := f.b.Transaction(tx.ID, ActiveOnly); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted transaction visible: %v", err)
	}
	if old, err := f.b.Transaction(tx.ID, IncludeDeleted); err != nil || !old.IsDeleted {
		t.Fatalf("deleted transaction lost: %+v %v", old, err)
	}
	a, _ = f.b.Account(f.checking, ActiveOnly)
	if a.Balance != 100000 {
		t.Fatalf("balance after delete %d", a.Balance)
	}
	if err := f.b.DeleteTransaction(tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	mustVerify(t, f.b)
}

func TestSoftDeleteViews(t *testing.T) {
	f := newFixture(t)
	if err := f.b.DeleteCategory(f.rent); err != nil {
		t.Fatal(err)
	}
	if _, err := f.b.Category(f.rent, ActiveOnly); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ActiveOnly: %v", err)
	}
	if c, err := f.b.Category(f.rent, IncludeDeleted); err != nil || !c.IsDeleted {
		t.Fatalf("IncludeDeleted: %+v %v", c, err)
	}
	g, _ := f.b.CategoryGroup(f.bills, ActiveOnly)
	if len(g.Categories) != 1 || g.Categories[0] != f.food {
		t.Fatalf("active group lists %v", g.Categories)
	}
	if _, err := f.b.AddCategory(99, "Nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("AddCategory in unknown group: %v", err)
	}

	if err := f.b.DeleteCategory(f.b.InflowCategory()); !errors.Is(err, core.ErrReserved) {
		t.Fatalf("deleting inflow: %v", err)
	}
	a, _ := f.b.Account(f.checking, ActiveOnly)
	if err := f.b.DeletePayee(a.TransferPayee); !errors.Is(err, core.ErrReserved) {
		t.Fatalf("deleting transfer payee: %v", err)
	}

	if err := f.b.DeleteAccount(f.checking); err != nil {
		t.Fatal(err)
	}
	if got := len(f.b.Accounts(ActiveOnly)); got != 0 {
		t.Fatalf("%d active accounts", got)
	}
	if got := len(f.b.Accounts(IncludeDeleted)); got != 1 {
		t.Fatalf("%d accounts including deleted", got)
	}
	if _, err := f.b.Payee(a.TransferPayee, ActiveOnly); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transfer payee of deleted account: %v", err)
	}
}

func TestAddAccountStartingBalance(t *testing.T) {
	f := newFixture(t)

	id := mustAccount(t, f.b, NewAccount{Name: "Wallet", Kind: core.Cash, OnBudget: true, StartingBalance: 15000, Date: day(jan, 1)})
	a, _ := f.b.Account(id, ActiveOnly)
	if a.Balance != 15000 || a.ClearedBalance != 15000 {
		t.Fatalf("wallet %d/%d", a.Balance, a.ClearedBalance)
	}
	if m, _ := f.b.Month(jan); m.Income != 15000 || m.ToBeBudgeted != 15000 {
		t.Fatalf("month income %d tbb %d", m.Income, m.ToBeBudgeted)
	}

	house := mustAccount(t, f.b, NewAccount{Name: "House", Kind: core.OtherAsset, StartingBalance: 9000000, Date: day(feb, 1)})
	if a, _ := f.b.Account(house, ActiveOnly); a.Balance != 9000000 {
		t.Fatalf("house balance %d", a.Balance)
	}

	before := len(f.b.Accounts(IncludeDeleted))
	_, err := f.b.AddAccount(NewAccount{Name: "Late", Kind: core.Checking, OnBudget: true, StartingBalance: 1, Date: day(mar, 1)})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("starting balance in missing month: %v", err)
	}
	if got := len(f.b.Accounts(IncludeDeleted)); got != before {
		t.Fatalf("account created despite failure")
	}
	if _, err := f.b.AddAccount(NewAccount{Name: "", Kind: core.Checking}); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := f.b.AddAccount(NewAccount{Name: "X", Kind: 0}); !errors.Is(err, core.ErrInvalidAccountKind) {
		t.Fatalf("bad kind: %v", err)
	}
	mustVerify(t, f.b)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	f.income(t, 1000, day(jan, 1))
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 2), Amount: -100, Account: f.checking, Category: f.rent, Cleared: core.Uncleared})

	before, _ := f.b.Account(f.checking, ActiveOnly)
	n, err := f.b.Reconcile(f.checking)
	if err != nil || n != 1 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}
	after, _ := f.b.Account(f.checking, ActiveOnly)
	if before != after {
		t.Fatalf("reconcile changed balances: %+v -> %+v", before, after)
	}
	txs := f.b.Transactions(TransactionFilter{Account: f.checking})
	if txs[0].Cleared != core.Reconciled || txs[1].Cleared != core.Uncleared {
		t.Fatalf("statuses %s %s", txs[0].Cleared, txs[1].Cleared)
	}
	if err := f.b.ApproveTransaction(txs[1].ID, true); err != nil {
		t.Fatal(err)
	}
	if tx, _ := f.b.Transaction(txs[1].ID, ActiveOnly); !tx.Approved {
		t.Fatal("approval not stored")
	}
}

func TestGoalsInMonthReport(t *testing.T) {
	f := newFixture(t)
	goal := core.Goal{Kind: core.TargetCategoryBalanceByDate, Target: 120000, ByMonth: mar}
	if err := f.b.SetGoal(f.rent, goal); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if err := f.b.SetGoal(f.rent, core.Goal{Kind: core.MonthlyFunding, FundingBalance: 1}); !errors.Is(err, core.ErrInvalidGoal) {
		t.Fatalf("changing goal kind: %v", err)
	}
	if err := f.b.SetGoal(f.b.InflowCategory(), goal); !errors.Is(err, core.ErrInvalidGoal) {
		t.Fatalf("goal on inflow: %v", err)
	}

	r, err := f.b.MonthReport(jan)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("%d category rows", len(r.Categories))
	}
	row := r.Categories[0]
	if row.Name != "Rent" || row.Goal == nil {
		t.Fatalf("first row %+v", row)
	}
	if row.Goal.RequiredThisMonth != 40000 || row.Goal.Status != goals.Underfunded || r.Underfunded != 40000 {
		t.Fatalf("goal %+v underfunded %d", row.Goal, r.Underfunded)
	}
	if c, _ := f.b.Category(f.rent, ActiveOnly); c.Goal.CreationMonth != jan {
		t.Fatalf("creation month %s", c.Goal.CreationMonth)
	}

	if err := f.b.ClearGoal(f.rent); err != nil {
		t.Fatal(err)
	}
	if err := f.b.SetGoal(f.rent, core.Goal{Kind: core.MonthlyFunding, FundingBalance: 1000}); err != nil {
		t.Fatalf("new kind after clearing: %v", err)
	}
}

func TestAgeOfMoney(t *testing.T) {
	f := newFixture(t)
	tracking := mustAccount(t, f.b, NewAccount{Name: "Brokerage", Kind: core.OtherAsset})

	if _, ok := f.b.History().MonthAgeOfMoney(jan); ok {
		t.Fatal("age of money without inflows")
	}

	f.income(t, 1000000, day(jan, 1))
	f.income(t, 1000000, day(jan, 10))
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 15), Amount: -500000, Account: f.checking, Category: f.rent, Cleared: core.Cleared})
	// Uncleared spending and transfers inside the budget are ignored.
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 16), Amount: -900000, Account: f.checking, Category: f.food, Cleared: core.Uncleared})

	h := f.b.History()
	if age, ok := h.MonthAgeOfMoney(jan); !ok || age != 30 {
		t.Fatalf("age %d ok %v, want 30", age, ok)
	}

	// Moving money off budget spends the oldest remaining dollars.
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 20), Amount: -1000000, Account: f.checking, TransferAccount: tracking, Cleared: core.Cleared})
	r, err := f.b.MonthReport(jan)
	if err != nil {
		t.Fatal(err)
	}
	if r.AgeOfMoney == nil || *r.AgeOfMoney != 21 {
		t.Fatalf("report age %v, want 21 from the Jan 10 inflow", r.AgeOfMoney)
	}

	mustRecord(t, f.b, core.Transaction{Date: day(jan, 21), Amount: -500000, Account: f.checking, Category: f.rent, Cleared: core.Cleared})
	if _, ok := f.b.History().MonthAgeOfMoney(jan); ok {
		t.Fatal("age of money with nothing left unspent")
	}
	// The earlier snapshot is unaffected by later transactions.
	if age, ok := h.AgeOfMoney(day(jan, 15)); !ok || age != 14 {
		t.Fatalf("snapshot age %d ok %v, want 14", age, ok)
	}
}

func TestAgeOfMoneyIgnoresAccountDeletion(t *testing.T) {
	f := newFixture(t)
	f.income(t, 1000000, day(jan, 1))
	savings := mustAccount(t, f.b, NewAccount{
		Name: "Savings", Kind: core.Savings, OnBudget: true,
		StartingBalance: 500000, Date: day(jan, 10),
	})
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 12), Amount: -200000, Account: savings, TransferAccount: f.checking, Cleared: core.Cleared})
	mustRecord(t, f.b, core.Transaction{Date: day(jan, 15), Amount: -1100000, Account: f.checking, Category: f.food, Cleared: core.Cleared})

	before, ok := f.b.History().MonthAgeOfMoney(jan)
	if !ok || before != 21 {
		t.Fatalf("age %d ok %v, want 21 from the Jan 10 savings inflow", before, ok)
	}

	if err := f.b.DeleteAccount(savings); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	after, ok := f.b.History().MonthAgeOfMoney(jan)
	if !ok || after != before {
		t.Errorf("age after deleting savings = %d (ok %v), want %d", after, ok, before)
	}
	mustVerify(t, f.b)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	savings := mustAccount(t, f.b, NewAccount{Name: "Savings", Kind: core.Savings, OnBudget: true, StartingBalance: 5000, Date: day(jan, 1)})
	f.income(t, 400000, day(jan, 2))
	if err := f.b.SetCategoryBudgeted(f.rent, jan, 150000); err != nil {
		t.Fatal(err)
	}
	if err := f.b.AdvanceMonth(feb); err != nil {
		t.Fatal(err)
	}
	if err := f.b.SetCategoryBudgeted(f.food, feb, 30000); err != nil {
		t.Fatal(err)
	}
	tx := mustRecord(t, f.b, core.Transaction{Date: day(feb, 2), Amount: -12345, Account: f.checking, Category: f.food, Cleared: core.Uncleared, Memo: "groceries", FlagColor: core.FlagGreen})
	mustRecord(t, f.b, core.Transaction{Date: day(feb, 3), Amount: -1000, Account: f.checking, TransferAccount: savings, Cleared: core.Cleared})
	if err := f.b.DeleteTransaction(tx.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.b.SetGoal(f.food, core.Goal{Kind: core.MonthlyFunding, FundingBalance: 30000}); err != nil {
		t.Fatal(err)
	}
	if err := f.b.CloseAccount(savings); err != nil {
		t.Fatal(err)
	}

	snap := f.b.Snapshot()
	restored, err := Restore(snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := restored.Snapshot(); !reflect.DeepEqual(snap, got) {
		t.Fatalf("restored snapshot differs:\nwant %+v\ngot  %+v", snap, got)
	}
	mustVerify(t, restored)

	// Identifiers continue where the original left off.
	id, err := restored.AddPayee("Landlord")
	if err != nil || id != snap.NextIDs.Payee {
		t.Fatalf("AddPayee = %d, %v; want %d", id, err, snap.NextIDs.Payee)
	}

	broken := f.b.Snapshot()
	broken.NextIDs.Account++
	if _, err := Restore(broken); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("bad counters: %v", err)
	}
	broken = f.b.Snapshot()
	broken.Transactions[0].Category = 999
	if _, err := Restore(broken); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("dangling reference: %v", err)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	f := newFixture(t)
	f.income(t, 1000000, day(jan, 1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = f.b.RecordTransaction(core.Transaction{Date: day(jan, 2), Amount: -10, Account: f.checking, Category: f.food, Cleared: core.Cleared})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = f.b.MonthReport(jan)
				_ = f.b.Accounts(ActiveOnly)
			}
		}()
	}
	wg.Wait()

	a, _ := f.b.Account(f.checking, ActiveOnly)
	if a.Balance != 1000000-8*50*10 {
		t.Fatalf("balance %d", a.Balance)
	}
	mustVerify(t, f.b)
}
