package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"facturation/internal/amqp"
	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/log"
	"facturation/internal/sheets/memory"
)

func plan(docID, date string, amount int64, invoiced bool) core.BillingPlan {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	step := core.BillingStep{Date: d, Amount: decimal.NewFromInt(amount), Invoiced: invoiced}
	return core.BillingPlan{DocID: docID, QuotationID: 1, ProjectTitle: "P" + docID, Steps: []core.BillingStep{step}}
}

type staticLoader struct {
	plans []core.BillingPlan
	err   error
	loads int
}

func (l *staticLoader) Load(context.Context) (*billing.Aggregate, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return billing.Derive(l.plans), nil
}

type failingWriter struct{ err error }

func (f failingWriter) ReplaceRows(context.Context, string, []string, [][]any) error { return f.err }

func newWorker(loader Loader, writer *memory.Store) *SyncWorker {
	return NewSyncWorker(loader, writer, Config{SheetBaseName: "Facturation"}, log.Discard())
}

func TestFullResyncWritesEveryYear(t *testing.T) {
	loader := &staticLoader{plans: []core.BillingPlan{
		plan("1", "2025-03-10", 100, false),
		plan("2", "2024-11-02", 50, true),
		plan("3", "2025-01-20", 70, false),
	}}
	sheetStore := memory.New()
	w := newWorker(loader, sheetStore)

	if err := w.FullResync(context.Background(), TriggerStartup); err != nil {
		t.Fatalf("FullResync: %v", err)
	}
	names := sheetStore.Names()
	if len(names) != 2 || names[0] != "2024 Facturation" || names[1] != "2025 Facturation" {
		t.Fatalf("names = %v", names)
	}
	sh, _ := sheetStore.Sheet("2025 Facturation")
	if len(sh.Rows) != 2 || sh.Header[0] != "Mois" {
		t.Fatalf("2025 sheet = %+v", sh)
	}
	if sh.Rows[0][0] != "mars 2025" {
		t.Errorf("newest month first, got %v", sh.Rows[0][0])
	}
}

func TestHandlePlanChangedOnlyNamedYears(t *testing.T) {
	loader := &staticLoader{plans: []core.BillingPlan{
		plan("1", "2025-03-10", 100, false),
		plan("2", "2024-11-02", 50, true),
	}}
	sheetStore := memory.New()
	w := newWorker(loader, sheetStore)

	msg := amqp.NewPlanChangedMessage("1", amqp.OpToggle, []int{2025}).WithStep(0)
	if err := w.HandlePlanChanged(context.Background(), msg); err != nil {
		t.Fatalf("HandlePlanChanged: %v", err)
	}
	if names := sheetStore.Names(); len(names) != 1 || names[0] != "2025 Facturation" {
		t.Fatalf("names = %v", names)
	}
}

func TestHandlePlanChangedClearsEmptiedYear(t *testing.T) {
	loader := &staticLoader{plans: []core.BillingPlan{plan("1", "2025-03-10", 100, false)}}
	sheetStore := memory.New()
	w := newWorker(loader, sheetStore)

	msg := amqp.NewPlanChangedMessage("1", amqp.OpSave, []int{2025, 2023})
	if err := w.HandlePlanChanged(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	sh, ok := sheetStore.Sheet("2023 Facturation")
	if !ok || len(sh.Rows) != 0 || len(sh.Header) == 0 {
		t.Fatalf("a year without billing keeps only its header: %+v %v", sh, ok)
	}
}

func TestResyncMessageIgnoresYears(t *testing.T) {
	loader := &staticLoader{plans: []core.BillingPlan{
		plan("1", "2025-03-10", 100, false),
		plan("2", "2024-11-02", 50, true),
	}}
	sheetStore := memory.New()
	w := newWorker(loader, sheetStore)

	msg := amqp.NewPlanChangedMessage("", amqp.OpResync, []int{2025})
	if err := w.HandlePlanChanged(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(sheetStore.Names()) != 2 {
		t.Fatalf("names = %v", sheetStore.Names())
	}
}

func TestSyncErrors(t *testing.T) {
	boom := errors.New("boom")

	w := newWorker(&staticLoader{err: boom}, memory.New())
	if err := w.FullResync(context.Background(), TriggerSchedule); !errors.Is(err, boom) {
		t.Fatalf("load error = %v", err)
	}

	loader := &staticLoader{plans: []core.BillingPlan{plan("1", "2025-03-10", 100, false)}}
	w = NewSyncWorker(loader, failingWriter{err: boom}, Config{}, log.Discard())
	if err := w.FullResync(context.Background(), TriggerSchedule); !errors.Is(err, boom) {
		t.Fatalf("write error = %v", err)
	}
}

func TestSchedule(t *testing.T) {
	w := newWorker(&staticLoader{}, memory.New())
	c, err := w.Schedule("")
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("entries = %d", len(c.Entries()))
	}
	if _, err := w.Schedule("not a cron spec"); err == nil {
		t.Fatal("expected invalid spec error")
	}
}
