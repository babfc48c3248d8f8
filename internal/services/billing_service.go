// Package services orchestrates the billing load cycle over the document
// store, the CRM and change notifications.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"facturation/internal/amqp"
	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/crm"
	"facturation/internal/log"
	"facturation/internal/store"
)

var (
	ErrPlanNotFound   = errors.New("billing plan not found")
	ErrCRMUnavailable = errors.New("quotation lookup unavailable")
	ErrMonthNotFound  = errors.New("no billing for this month")
	ErrDocIDMismatch  = errors.New("document id does not match quotation id")
)

// ValidationError marks a rejected input.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Quotations is the part of the CRM client billing depends on.
type Quotations interface {
	Quotation(ctx context.Context, id int64) (crm.Quotation, error)
	QuotationTotals(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
}

// Publisher sends plan change notifications.
type Publisher interface {
	PublishPlanChanged(ctx context.Context, msg *amqp.PlanChangedMessage) error
}

// Observer is told about load cycles and toggles; metrics implement it.
type Observer interface {
	ObserveLoad(d time.Duration, buckets, rejected int, err error)
	ObserveToggle(err error)
}

type BillingService struct {
	plans      *store.Plans
	quotations Quotations
	publisher  Publisher
	observer   Observer
	logger     *log.Logger

	// writeMu serializes read-modify-write cycles on plans.
	writeMu sync.Mutex

	mu       sync.RWMutex
	agg      *billing.Aggregate
	loadedAt time.Time
}

type Option func(*BillingService)

func WithQuotations(q Quotations) Option { return func(s *BillingService) { s.quotations = q } }
func WithPublisher(p Publisher) Option   { return func(s *BillingService) { s.publisher = p } }
func WithObserver(o Observer) Option     { return func(s *BillingService) { s.observer = o } }
func WithLogger(l *log.Logger) Option    { return func(s *BillingService) { s.logger = l } }

func NewBillingService(docs store.DocumentStore, opts ...Option) *BillingService {
	s := &BillingService{plans: store.NewPlans(docs)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentBilling)
	return s
}

// Load reads every plan and derives a fresh aggregate. A store failure
// aborts the cycle and leaves the previous aggregate in place.
func (s *BillingService) Load(ctx context.Context) (*billing.Aggregate, error) {
	start := time.Now()
	plans, bad, err := s.plans.List(ctx)
	if err != nil {
		s.observeLoad(start, nil, err)
		return nil, err
	}
	for _, b := range bad {
		s.logger.WarnContext(ctx, "Skipping undecodable billing plan",
			log.FieldDocID, b.DocID, log.FieldError, b.Err)
	}

	agg := billing.Derive(plans)
	for _, r := range agg.Rejected {
		s.logger.WarnContext(ctx, "Rejected billing step",
			log.NewFields().WithStep(r.DocID, r.StepIndex).WithError(r.Err).ToSlice()...)
	}

	s.mu.Lock()
	s.agg = agg
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.observeLoad(start, agg, nil)
	s.logger.DebugContext(ctx, "Billing aggregate derived",
		"plans", len(plans), "buckets", agg.Len(), "rejected", len(agg.Rejected))
	return agg, nil
}

// Aggregate returns the current aggregate, loading it on first use.
func (s *BillingService) Aggregate(ctx context.Context) (*billing.Aggregate, error) {
	s.mu.RLock()
	agg := s.agg
	s.mu.RUnlock()
	if agg != nil {
		return agg, nil
	}
	return s.Load(ctx)
}

// LoadedAt reports when the aggregate was last derived.
func (s *BillingService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// MonthView is one month's table: totals plus partitioned items.
type MonthView struct {
	Key    core.MonthKey
	Bucket billing.Bucket
	Totals billing.Totals
	Items  billing.Partitioned
}

// Month returns the view of one month with q applied.
func (s *BillingService) Month(ctx context.Context, key core.MonthKey, q billing.Query) (MonthView, error) {
	agg, err := s.Aggregate(ctx)
	if err != nil {
		return MonthView{}, err
	}
	b, ok := agg.Bucket(key)
	if !ok {
		return MonthView{}, fmt.Errorf("%s: %w", key, ErrMonthNotFound)
	}
	return MonthView{Key: key, Bucket: b, Totals: billing.Classify(b), Items: q.Apply(b)}, nil
}

// Plan returns one stored plan.
func (s *BillingService) Plan(ctx context.Context, docID string) (core.BillingPlan, error) {
	plan, ok, err := s.plans.Get(ctx, docID)
	if err != nil {
		return core.BillingPlan{}, err
	}
	if !ok {
		return core.BillingPlan{}, fmt.Errorf("%s: %w", docID, ErrPlanNotFound)
	}
	return plan, nil
}

// ToggleInvoiced flips the invoiced flag of one step, writes the steps
// back, then re-derives the whole aggregate. Nothing local changes when
// the write fails.
func (s *BillingService) ToggleInvoiced(ctx context.Context, docID string, stepIndex int) (*billing.Aggregate, error) {
	agg, err := s.toggle(ctx, docID, stepIndex)
	if s.observer != nil {
		s.observer.ObserveToggle(err)
	}
	return agg, err
}

func (s *BillingService) toggle(ctx context.Context, docID string, stepIndex int) (*billing.Aggregate, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	plan, err := s.Plan(ctx, docID)
	if err != nil {
		return nil, err
	}
	toggled, err := billing.ToggleStep(plan, stepIndex)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := s.plans.UpdateSteps(ctx, docID, toggled.Steps); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", docID, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("write back toggle: %w", err)
	}

	step := toggled.Steps[stepIndex]
	s.logger.InfoContext(ctx, "Step invoiced state changed",
		log.NewFields().WithStep(docID, stepIndex).WithOperation(log.OpToggle).ToSlice()...,
	)
	agg, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload after toggle: %w", err)
	}

	var years []int
	if step.Date.Validate() == nil {
		years = []int{step.Date.Year()}
	}
	s.publish(ctx, amqp.NewPlanChangedMessage(docID, amqp.OpToggle, years).WithStep(stepIndex))
	return agg, nil
}

// SavePlan validates and stores a plan. When the plan is new and carries
// a revision, its total must exceed the quotation's tax-inclusive total.
func (s *BillingService) SavePlan(ctx context.Context, plan core.BillingPlan) (core.BillingPlan, error) {
	want := core.DocIDFor(plan.QuotationID)
	if plan.DocID == "" {
		plan.DocID = want
	}
	if plan.DocID != want {
		return core.BillingPlan{}, &ValidationError{Err: fmt.Errorf("%w: %s vs %d", ErrDocIDMismatch, plan.DocID, plan.QuotationID)}
	}
	if err := plan.Validate(); err != nil {
		return core.BillingPlan{}, &ValidationError{Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, exists, err := s.plans.Get(ctx, plan.DocID)
	if err != nil {
		return core.BillingPlan{}, err
	}
	if !exists && plan.HasRevision() {
		if s.quotations == nil {
			return core.BillingPlan{}, ErrCRMUnavailable
		}
		q, err := s.quotations.Quotation(ctx, plan.QuotationID)
		if err != nil {
			if errors.Is(err, crm.ErrNotFound) {
				return core.BillingPlan{}, &ValidationError{Err: fmt.Errorf("quotation %d: %w", plan.QuotationID, err)}
			}
			return core.BillingPlan{}, fmt.Errorf("%w: %v", ErrCRMUnavailable, err)
		}
		if err := plan.ValidateAgainstQuotation(q.TotalTTC()); err != nil {
			return core.BillingPlan{}, &ValidationError{Err: err}
		}
	}

	if err := s.plans.Save(ctx, plan); err != nil {
		return core.BillingPlan{}, err
	}
	s.logger.InfoContext(ctx, "Billing plan saved",
		log.FieldDocID, plan.DocID, log.FieldOperation, log.OpSave, "created", !exists)

	if _, err := s.Load(ctx); err != nil {
		return plan, fmt.Errorf("reload after save: %w", err)
	}
	years := planYears(plan)
	if exists {
		years = mergeYears(years, planYears(existing))
	}
	s.publish(ctx, amqp.NewPlanChangedMessage(plan.DocID, amqp.OpSave, years))
	return plan, nil
}

// Export projects the current aggregate through f.
func (s *BillingService) Export(ctx context.Context, f billing.Filter, l core.Locale) ([]billing.Row, error) {
	agg, err := s.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return billing.Project(agg, f, l), nil
}

// Reconciliation compares every plan with its quotation. When the CRM is
// not configured or fails, plans are reported without quotation totals.
func (s *BillingService) Reconciliation(ctx context.Context) ([]billing.PlanSummary, error) {
	plans, _, err := s.plans.List(ctx)
	if err != nil {
		return nil, err
	}
	var totals map[int64]decimal.Decimal
	if s.quotations != nil && len(plans) > 0 {
		ids := make([]int64, 0, len(plans))
		for _, p := range plans {
			ids = append(ids, p.QuotationID)
		}
		totals, err = s.quotations.QuotationTotals(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "Quotation totals unavailable, reconciling without them",
				log.FieldOperation, log.OpReconcile, log.FieldError, err)
			totals = nil
		}
	}
	return billing.Reconcile(plans, totals), nil
}

func (s *BillingService) publish(ctx context.Context, msg *amqp.PlanChangedMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPlanChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish plan change",
			log.FieldDocID, msg.DocID, log.FieldError, err)
	}
}

func (s *BillingService) observeLoad(start time.Time, agg *billing.Aggregate, err error) {
	if s.observer == nil {
		return
	}
	buckets, rejected := 0, 0
	if agg != nil {
		buckets, rejected = agg.Len(), len(agg.Rejected)
	}
	s.observer.ObserveLoad(time.Since(start), buckets, rejected, err)
}

func planYears(p core.BillingPlan) []int {
	var years []int
	for _, st := range p.Steps {
		if st.Date.Validate() == nil {
			years = mergeYears(years, []int{st.Date.Year()})
		}
	}
	return years
}

func mergeYears(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, y := range append(append([]int(nil), a...), b...) {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
