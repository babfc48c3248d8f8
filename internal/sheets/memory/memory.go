// Package memory keeps mirrored sheets in process. The worker uses it
// when no spreadsheet is configured.
package memory

import (
	"context"
	"sort"
	"sync"
)

type Sheet struct {
	Header []string
	Rows   [][]any
}

type Store struct {
	mu     sync.Mutex
	sheets map[string]Sheet
	writes int
}

func New() *Store {
	return &Store{sheets: make(map[string]Sheet)}
}

// ReplaceRows stores a copy of header and rows under sheet.
func (s *Store) ReplaceRows(ctx context.Context, sheet string, header []string, rows [][]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([][]any, len(rows))
	for i, r := range rows {
		cp[i] = append([]any(nil), r...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet] = Sheet{Header: append([]string(nil), header...), Rows: cp}
	s.writes++
	return nil
}

// Sheet returns the last content written to name.
func (s *Store) Sheet(name string) (Sheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[name]
	return sh, ok
}

// Names lists the written sheets in order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sheets))
	for n := range s.sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Writes counts ReplaceRows calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
