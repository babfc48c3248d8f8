package memory

import (
	"context"
	"testing"
)

func TestReplaceRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	rows := [][]any{{"mars 2025", 1.5}}
	if err := s.ReplaceRows(ctx, "2025 Facturation", []string{"Mois", "Montant"}, rows); err != nil {
		t.Fatal(err)
	}
	rows[0][0] = "changed"

	sh, ok := s.Sheet("2025 Facturation")
	if !ok || len(sh.Rows) != 1 || sh.Rows[0][0] != "mars 2025" {
		t.Fatalf("sheet = %+v, %v", sh, ok)
	}

	if err := s.ReplaceRows(ctx, "2025 Facturation", nil, nil); err != nil {
		t.Fatal(err)
	}
	sh, _ = s.Sheet("2025 Facturation")
	if len(sh.Rows) != 0 || s.Writes() != 2 {
		t.Fatalf("replace did not overwrite: %+v writes=%d", sh, s.Writes())
	}
	if names := s.Names(); len(names) != 1 {
		t.Fatalf("names = %v", names)
	}
}

func TestReplaceRowsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().ReplaceRows(ctx, "x", nil, nil); err == nil {
		t.Fatal("expected context error")
	}
}
