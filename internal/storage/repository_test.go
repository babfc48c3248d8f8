package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"facturation/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "facturation.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSetGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "billingPlans", "2", json.RawMessage(`{"quotationId":2}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "billingPlans", "1", json.RawMessage(`{"quotationId":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "other", "1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	docs, err := s.ListAll(ctx, "billingPlans")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "1" || docs[1].ID != "2" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	if _, ok, err := s.Get(ctx, "billingPlans", "3"); err != nil || ok {
		t.Fatalf("expected missing document, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "billingPlans", "1", json.RawMessage(`{"quotationId":1,"projectTitle":"x"}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	doc, ok, err := s.Get(ctx, "billingPlans", "1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(doc.Data) != `{"quotationId":1,"projectTitle":"x"}` {
		t.Fatalf("unexpected body %s", doc.Data)
	}
}

func TestSQLiteStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "billingPlans", "1", json.RawMessage(`{"quotationId":1,"steps":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := s.Update(ctx, "billingPlans", "1", map[string]any{"steps": []map[string]any{{"amount": 10, "invoiced": true}}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _, _ := s.Get(ctx, "billingPlans", "1")
	var body struct {
		QuotationID int `json:"quotationId"`
		Steps       []struct {
			Invoiced bool `json:"invoiced"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(doc.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.QuotationID != 1 || len(body.Steps) != 1 || !body.Steps[0].Invoiced {
		t.Fatalf("unexpected merged body %s", doc.Data)
	}

	err = s.Update(ctx, "billingPlans", "404", map[string]any{"steps": nil})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreRejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set(context.Background(), "billingPlans", "1", json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(path); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
