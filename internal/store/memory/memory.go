// Package memory is an in-process document store, optionally seeded from
// a YAML file.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"facturation/internal/store"
)

// Store keeps documents in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]json.RawMessage)}
}

// seedFile maps collection -> document id -> document body.
type seedFile map[string]map[string]map[string]any

// NewFromFile loads a YAML seed file. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if err := s.Load(raw); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return s, nil
}

// Load merges YAML seed data into the store.
func (s *Store) Load(raw []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for coll, docs := range seed {
		for id, body := range docs {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", coll, id, err)
			}
			s.collection(coll)[id] = data
		}
	}
	return nil
}

func (s *Store) collection(name string) map[string]json.RawMessage {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]json.RawMessage)
		s.collections[name] = c
	}
	return c
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]store.Document, 0, len(s.collections[collection]))
	for id, data := range s.collections[collection] {
		docs = append(docs, store.Document{ID: id, Data: clone(data)})
	}
	store.SortDocuments(docs)
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, false, nil
	}
	return store.Document{ID: id, Data: clone(data)}, true, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("document %s is not valid JSON", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = clone(data)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	merged, err := store.MergeFields(data, fields)
	if err != nil {
		return err
	}
	s.collections[collection][id] = merged
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func clone(b json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), b...)
}
