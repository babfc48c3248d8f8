package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"facturation/internal/core"
	"facturation/internal/store"
)

const seed = `
billingPlans:
  "2":
    quotationId: 2
    projectTitle: B
    generatedBy: bob@example.com
    steps:
      - {amount: 500, revision: 50, date: "2025-03-20", invoiced: true, reliability: 75}
  "1":
    quotationId: "1"
    projectTitle: A
    generatedBy: alice@example.com
    steps:
      - {amount: 1000, revision: 0, date: "2025-03-10", invoiced: false, reliability: "100"}
`

func TestLoadSeedAndListPlans(t *testing.T) {
	s := New()
	if err := s.Load([]byte(seed)); err != nil {
		t.Fatalf("load: %v", err)
	}
	plans, bad, err := store.NewPlans(s).List(context.Background())
	if err != nil || len(bad) != 0 {
		t.Fatalf("list: err=%v bad=%v", err, bad)
	}
	if len(plans) != 2 || plans[0].DocID != "1" || plans[1].DocID != "2" {
		t.Fatalf("unexpected plans %+v", plans)
	}
	if plans[0].QuotationID != 1 || !plans[0].Steps[0].Reliability.Is(100) {
		t.Fatalf("seed not decoded: %+v", plans[0])
	}
	if got := plans[1].Steps[0].Sum().String(); got != "550" {
		t.Fatalf("sum = %s", got)
	}
}

func TestNewFromFileMissingIsEmpty(t *testing.T) {
	s, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docs, _ := s.ListAll(context.Background(), core.PlansCollection)
	if len(docs) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestNewFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("billingPlans: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateStepsWritesThrough(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Load([]byte(seed)); err != nil {
		t.Fatal(err)
	}
	plans := store.NewPlans(s)

	p, ok, err := plans.Get(ctx, "2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	p.Steps[0].Invoiced = false
	if err := plans.UpdateSteps(ctx, "2", p.Steps); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, _, _ := plans.Get(ctx, "2")
	if again.Steps[0].Invoiced {
		t.Fatalf("toggle not persisted")
	}
	if again.ProjectTitle != "B" {
		t.Fatalf("update must keep other fields, got %+v", again)
	}

	err = plans.UpdateSteps(ctx, "missing", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndUndecodableDocuments(t *testing.T) {
	ctx := context.Background()
	s := New()
	plans := store.NewPlans(s)

	plan := core.BillingPlan{QuotationID: 7, ProjectTitle: "X", Steps: []core.BillingStep{{Date: core.NewDate(2025, 1, 1)}}}
	if err := plans.Save(ctx, plan); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Set(ctx, core.PlansCollection, "8", json.RawMessage(`{"quotationId":"abc"}`)); err != nil {
		t.Fatal(err)
	}

	list, bad, err := plans.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].DocID != "7" {
		t.Fatalf("unexpected plans %+v", list)
	}
	if len(bad) != 1 || bad[0].DocID != "8" {
		t.Fatalf("unexpected decode errors %+v", bad)
	}
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().ListAll(ctx, core.PlansCollection); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
