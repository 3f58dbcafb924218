package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"envelope/internal/amqp"
	"envelope/internal/core"
)

func newService(t *testing.T) (*BudgetService, fixture, *fakeSaver, *fakePublisher) {
	t.Helper()
	f := newFixture(t, "Household")
	saver := &fakeSaver{}
	pub := &fakePublisher{}
	return NewBudgetService(f.budget, saver, pub, BudgetServiceOptions{}), f, saver, pub
}

func TestBudgetService_MutationsPublishEvents(t *testing.T) {
	ctx := context.Background()
	svc, f, saver, pub := newService(t)

	if err := svc.SetBudgeted(ctx, f.food, jan, 30000); err != nil {
		t.Fatalf("SetBudgeted: %v", err)
	}
	tx, err := svc.RecordTransaction(ctx, core.Transaction{
		Date: core.NewDate(2024, 1, 4), Amount: -12000, Account: f.checking, Payee: f.grocer, Category: f.food,
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := svc.AdvanceMonth(ctx, jan.Next()); err != nil {
		t.Fatalf("AdvanceMonth: %v", err)
	}
	if _, err := svc.AddPayee(ctx, "Landlord"); err != nil {
		t.Fatalf("AddPayee: %v", err)
	}

	want := []amqp.EventType{
		amqp.EventAllocationSet,
		amqp.EventTransactionRecorded,
		amqp.EventTransactionDeleted,
		amqp.EventMonthAdvanced,
	}
	if got := pub.types(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	ev := pub.events[1]
	if ev.Budget != "Household" || ev.Month != "2024-01" || ev.TransactionID != int64(tx.ID) || ev.AmountMilli != -12000 {
		t.Errorf("unexpected transaction event %+v", ev)
	}
	// Each published change is persisted before the event goes out.
	if saver.count() != 4 {
		t.Errorf("saves = %d, want 4", saver.count())
	}
	if !svc.Dirty() {
		t.Error("unpublished payee change should still be pending")
	}
}

func TestBudgetService_UpdateAcrossMonthsPublishesBoth(t *testing.T) {
	ctx := context.Background()
	svc, f, _, pub := newService(t)
	if err := svc.AdvanceMonth(ctx, jan.Next()); err != nil {
		t.Fatal(err)
	}
	tx, err := svc.RecordTransaction(ctx, core.Transaction{
		Date: core.NewDate(2024, 1, 20), Amount: -5000, Account: f.checking, Category: f.food,
	})
	if err != nil {
		t.Fatal(err)
	}
	tx.Date = core.NewDate(2024, 2, 2)
	if _, err := svc.UpdateTransaction(ctx, tx.ID, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	months := map[string]bool{}
	for _, ev := range pub.events {
		if ev.Type == amqp.EventTransactionUpdated {
			months[ev.Month] = true
		}
	}
	if !months["2024-01"] || !months["2024-02"] {
		t.Errorf("update events cover %v, want both months", months)
	}
}

func TestBudgetService_PublishFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	svc, f, _, pub := newService(t)
	pub.err = amqp.ErrCircuitOpen

	if err := svc.SetBudgeted(ctx, f.food, jan, 1000); err != nil {
		t.Fatalf("SetBudgeted should succeed without the broker: %v", err)
	}
	cm, err := svc.Budget().CategoryMonth(f.food, jan)
	if err != nil {
		t.Fatal(err)
	}
	if cm.Budgeted != 1000 {
		t.Errorf("Budgeted = %d, want 1000", cm.Budgeted)
	}
}

func TestBudgetService_RejectedMutation(t *testing.T) {
	ctx := context.Background()
	svc, f, _, pub := newService(t)

	_, err := svc.RecordTransaction(ctx, core.Transaction{
		Date: core.NewDate(2024, 1, 4), Amount: -100, Account: 999, Category: f.food,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if svc.Dirty() {
		t.Error("a rejected operation marked the budget dirty")
	}
	if len(pub.types()) != 0 {
		t.Errorf("rejected operation published %v", pub.types())
	}
}

func TestBudgetService_MonthReportCache(t *testing.T) {
	ctx := context.Background()
	svc, f, _, _ := newService(t)

	first, err := svc.MonthReport(ctx, jan)
	if err != nil {
		t.Fatalf("MonthReport: %v", err)
	}
	if _, err := svc.MonthReport(ctx, jan); err != nil {
		t.Fatalf("MonthReport: %v", err)
	}
	if hits := svc.ReportCache().Stats().Hits; hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}

	if err := svc.SetBudgeted(ctx, f.food, jan, 25000); err != nil {
		t.Fatal(err)
	}
	second, err := svc.MonthReport(ctx, jan)
	if err != nil {
		t.Fatal(err)
	}
	if second.Budgeted != first.Budgeted+25000 {
		t.Errorf("report after allocation Budgeted = %d, want %d", second.Budgeted, first.Budgeted+25000)
	}
	if second.ToBeBudgeted != first.ToBeBudgeted-25000 {
		t.Errorf("ToBeBudgeted = %d, want %d", second.ToBeBudgeted, first.ToBeBudgeted-25000)
	}
}

func TestBudgetService_MonthReportConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.MonthReport(ctx, jan)
			if err == nil && r.Month.Month != jan {
				err = errors.New("wrong month")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestBudgetService_MonthReportUnknownMonth(t *testing.T) {
	svc, _, _, _ := newService(t)
	if _, err := svc.MonthReport(context.Background(), jan+5); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBudgetService_Dashboard(t *testing.T) {
	ctx := context.Background()
	svc, f, _, _ := newService(t)
	if _, err := svc.AddAccount(ctx, ledgerAccount("Brokerage", 500000)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordTransaction(ctx, core.Transaction{
		Date: core.NewDate(2024, 1, 4), Amount: -20000, Account: f.checking, Category: f.food,
	}); err != nil {
		t.Fatal(err)
	}

	d, err := svc.Dashboard(ctx, jan)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.OnBudget != 80000 {
		t.Errorf("OnBudget = %d, want 80000", d.OnBudget)
	}
	if d.NetWorth != 580000 {
		t.Errorf("NetWorth = %d, want 580000", d.NetWorth)
	}
	if len(d.Accounts) != 3 || len(d.Months) != 1 {
		t.Errorf("accounts %d months %d", len(d.Accounts), len(d.Months))
	}
	if d.Report.Activity != -20000 {
		t.Errorf("report activity = %d", d.Report.Activity)
	}
}

func TestBudgetService_Flush(t *testing.T) {
	ctx := context.Background()
	svc, f, saver, _ := newService(t)

	if err := svc.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if saver.count() != 0 {
		t.Fatalf("clean budget saved %d times", saver.count())
	}

	if err := svc.HideCategory(ctx, f.food, true); err != nil {
		t.Fatal(err)
	}
	saver.err = errors.New("disk full")
	if err := svc.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if !svc.Dirty() {
		t.Error("failed flush cleared the dirty flag")
	}

	saver.err = nil
	if err := svc.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if saver.count() != 1 || svc.Dirty() {
		t.Errorf("saves = %d dirty = %v", saver.count(), svc.Dirty())
	}
	cat := saver.saves[0].Categories
	hidden := false
	for _, c := range cat {
		if c.ID == f.food {
			hidden = c.IsHidden
		}
	}
	if !hidden {
		t.Error("snapshot does not carry the hidden category")
	}
}

func TestSnapshotter_StopFlushes(t *testing.T) {
	ctx := context.Background()
	svc, f, saver, _ := newService(t)
	s := NewSnapshotter(svc, time.Hour, nil)

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("expected error starting twice")
	}
	if err := svc.SetCategoryNote(ctx, f.food, "weekly shop"); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("still running after Stop")
	}
	if saver.count() != 1 {
		t.Errorf("saves = %d, want 1", saver.count())
	}
}
