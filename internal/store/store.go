// Package store defines the Billing Record Store port: a generic
// key-document store, and the typed billing plan repository on top of it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"facturation/internal/core"
)

// ErrNotFound is returned by Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a stored JSON body with its id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// DocumentStore is the outbound port for document backends.
type DocumentStore interface {
	// ListAll returns every document of a collection ordered by id.
	ListAll(ctx context.Context, collection string) ([]Document, error)
	// Get returns the document and whether it exists.
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data json.RawMessage) error
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SortDocuments orders documents by id.
func SortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

// MergeFields applies top-level fields onto a JSON object body.
func MergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}

// Plans reads and writes billing plans in the billingPlans collection.
type Plans struct {
	docs DocumentStore
}

func NewPlans(docs DocumentStore) *Plans {
	return &Plans{docs: docs}
}

// PlanDecodeError reports a document that is not a billing plan at all.
type PlanDecodeError struct {
	DocID string
	Err   error
}

func (e PlanDecodeError) Error() string {
	return fmt.Sprintf("decode plan %s: %v", e.DocID, e.Err)
}

func (e PlanDecodeError) Unwrap() error { return e.Err }

// List returns every plan. Undecodable documents are skipped and returned
// as PlanDecodeError values; store failures abort the call.
func (p *Plans) List(ctx context.Context) ([]core.BillingPlan, []PlanDecodeError, error) {
	docs, err := p.docs.ListAll(ctx, core.PlansCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("list billing plans: %w", err)
	}
	plans := make([]core.BillingPlan, 0, len(docs))
	var bad []PlanDecodeError
	for _, d := range docs {
		plan, err := decodePlan(d)
		if err != nil {
			bad = append(bad, PlanDecodeError{DocID: d.ID, Err: err})
			continue
		}
		plans = append(plans, plan)
	}
	return plans, bad, nil
}

// Get returns one plan.
func (p *Plans) Get(ctx context.Context, docID string) (core.BillingPlan, bool, error) {
	d, ok, err := p.docs.Get(ctx, core.PlansCollection, docID)
	if err != nil {
		return core.BillingPlan{}, false, fmt.Errorf("get billing plan %s: %w", docID, err)
	}
	if !ok {
		return core.BillingPlan{}, false, nil
	}
	plan, err := decodePlan(d)
	if err != nil {
		return core.BillingPlan{}, false, PlanDecodeError{DocID: docID, Err: err}
	}
	return plan, true, nil
}

// Save writes the whole plan under its doc id.
func (p *Plans) Save(ctx context.Context, plan core.BillingPlan) error {
	if plan.DocID == "" {
		plan.DocID = core.DocIDFor(plan.QuotationID)
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode billing plan: %w", err)
	}
	if err := p.docs.Set(ctx, core.PlansCollection, plan.DocID, data); err != nil {
		return fmt.Errorf("save billing plan %s: %w", plan.DocID, err)
	}
	return nil
}

// UpdateSteps replaces only the steps field of a stored plan.
func (p *Plans) UpdateSteps(ctx context.Context, docID string, steps []core.BillingStep) error {
	if err := p.docs.Update(ctx, core.PlansCollection, docID, map[string]any{"steps": steps}); err != nil {
		return fmt.Errorf("update steps of %s: %w", docID, err)
	}
	return nil
}

func decodePlan(d Document) (core.BillingPlan, error) {
	var plan core.BillingPlan
	if err := json.Unmarshal(d.Data, &plan); err != nil {
		return core.BillingPlan{}, err
	}
	plan.DocID = d.ID
	return plan, nil
}
