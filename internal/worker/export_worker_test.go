package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"envelope/internal/amqp"
	"envelope/internal/core"
)

type fakeExporter struct {
	err     error
	exports []string
	from    []core.MonthKey
	latest  int
}

func (f *fakeExporter) ExportNow(_ context.Context, budget string, month core.MonthKey) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exports = append(f.exports, budget+"/"+month.String())
	return "ref", nil
}

func (f *fakeExporter) EnqueueFrom(_ context.Context, _ string, from core.MonthKey) (int, error) {
	f.from = append(f.from, from)
	return 1, nil
}

func (f *fakeExporter) EnqueueLatest(context.Context) int {
	return f.latest
}

func TestHandleEvent(t *testing.T) {
	jan := core.NewMonthKey(2024, 1)
	tests := []struct {
		name        string
		typ         amqp.EventType
		month       string
		exportErr   error
		wantErr     bool
		wantExports int
		wantFrom    []core.MonthKey
	}{
		{
			name: "transaction exports month and queues later ones",
			typ:  amqp.EventTransactionRecorded, month: "2024-01",
			wantExports: 1, wantFrom: []core.MonthKey{jan.Next()},
		},
		{
			name: "month advance exports only that month",
			typ:  amqp.EventMonthAdvanced, month: "2024-01",
			wantExports: 1,
		},
		{
			name: "invalid month is dropped",
			typ:  amqp.EventAllocationSet, month: "January",
		},
		{
			name: "unknown budget is dropped",
			typ:  amqp.EventAllocationSet, month: "2024-01",
			exportErr: fmt.Errorf("budget: %w", core.ErrNotFound),
		},
		{
			name: "exporter failure requeues",
			typ:  amqp.EventAllocationSet, month: "2024-01",
			exportErr: errors.New("quota exceeded"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExporter{err: tt.exportErr}
			w := NewExportWorker(exp, nil)
			ev := amqp.NewLedgerEvent(tt.typ, "Household", tt.month)

			err := w.HandleEvent(context.Background(), ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(exp.exports) != tt.wantExports {
				t.Errorf("exports = %v, want %d", exp.exports, tt.wantExports)
			}
			if len(exp.from) != len(tt.wantFrom) {
				t.Fatalf("EnqueueFrom calls = %v, want %v", exp.from, tt.wantFrom)
			}
			for i := range tt.wantFrom {
				if exp.from[i] != tt.wantFrom[i] {
					t.Errorf("EnqueueFrom[%d] = %s, want %s", i, exp.from[i], tt.wantFrom[i])
				}
			}
		})
	}
}

func TestStartupExportCheck(t *testing.T) {
	w := NewExportWorker(&fakeExporter{latest: 3}, nil)
	if n := w.StartupExportCheck(context.Background()); n != 3 {
		t.Errorf("StartupExportCheck = %d, want 3", n)
	}
	w = NewExportWorker(&fakeExporter{}, nil)
	if n := w.StartupExportCheck(context.Background()); n != 0 {
		t.Errorf("StartupExportCheck = %d, want 0", n)
	}
}
