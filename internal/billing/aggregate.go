// Package billing derives the month-keyed billing view from persisted
// plans: aggregation, reliability classification, search and sort, and
// the flat projection used by exports.
//
// Everything here is pure and synchronous. An Aggregate is rebuilt from
// scratch after every persisted mutation; it is never patched in place.
package billing

import (
	"errors"
	"fmt"
	"sort"

	"facturation/internal/core"

	"github.com/shopspring/decimal"
)

// ErrStepOutOfRange is returned when a step index does not exist in a plan.
var ErrStepOutOfRange = errors.New("step index out of range")

// Item is one flattened (plan, step) pair.
type Item struct {
	DocID        string
	QuotationID  int64
	Title        string
	GeneratedBy  string
	Date         core.Date
	Amount       decimal.Decimal
	Revision     decimal.NullDecimal
	Invoiced     bool
	Reliability  core.Reliability
	StepsComment string
	StepIndex    int
	TotalSteps   int
}

// Sum returns amount plus revision, a null revision counting as zero.
func (i Item) Sum() decimal.Decimal {
	if i.Revision.Valid {
		return i.Amount.Add(i.Revision.Decimal)
	}
	return i.Amount
}

// Position formats the step as "n/total", counting from one.
func (i Item) Position() string {
	return fmt.Sprintf("%d/%d", i.StepIndex+1, i.TotalSteps)
}

// Bucket groups every item whose step date falls in one calendar month.
type Bucket struct {
	Key        core.MonthKey
	DateSample core.Date
	Items      []Item
	Total      decimal.Decimal
}

// Year returns the calendar year of the bucket's sample date.
func (b Bucket) Year() int {
	return b.DateSample.Year()
}

// Label returns the localized "Month Year" display text.
func (b Bucket) Label(l core.Locale) string {
	return b.Key.Label(l)
}

// recompute sets Total to the sum over non-invoiced items.
func (b *Bucket) recompute() {
	total := decimal.Zero
	for _, it := range b.Items {
		if !it.Invoiced {
			total = total.Add(it.Sum())
		}
	}
	b.Total = total
}

// StepError records a step rejected during aggregation. StepIndex is -1
// when the whole plan was unusable.
type StepError struct {
	DocID     string
	StepIndex int
	Err       error
}

func (e StepError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("plan %s: %v", e.DocID, e.Err)
	}
	return fmt.Sprintf("plan %s step %d: %v", e.DocID, e.StepIndex, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }

// Aggregate is the derived month-keyed view over a set of plans.
type Aggregate struct {
	buckets map[core.MonthKey]*Bucket
	ordered []core.MonthKey

	// Rejected lists the steps that could not be grouped.
	Rejected []StepError
}

// Derive groups the steps of plans into month buckets. Malformed steps are
// collected on Rejected and do not stop the pass. The same input always
// yields the same buckets, items and totals.
func Derive(plans []core.BillingPlan) *Aggregate {
	agg := &Aggregate{buckets: make(map[core.MonthKey]*Bucket)}

	for _, plan := range plans {
		if len(plan.Steps) == 0 {
			agg.Rejected = append(agg.Rejected, StepError{DocID: plan.DocID, StepIndex: -1, Err: core.ErrEmptySteps})
			continue
		}
		title := plan.Title()
		for idx, step := range plan.Steps {
			if err := step.Validate(); err != nil {
				agg.Rejected = append(agg.Rejected, StepError{DocID: plan.DocID, StepIndex: idx, Err: err})
				continue
			}
			key := step.Date.MonthKey()
			b, ok := agg.buckets[key]
			if !ok {
				b = &Bucket{Key: key, DateSample: step.Date}
				agg.buckets[key] = b
			}
			b.Items = append(b.Items, Item{
				DocID:        plan.DocID,
				QuotationID:  plan.QuotationID,
				Title:        title,
				GeneratedBy:  plan.GeneratedBy,
				Date:         step.Date,
				Amount:       step.Amount,
				Revision:     step.Revision,
				Invoiced:     step.Invoiced,
				Reliability:  step.Reliability,
				StepsComment: step.StepsComment,
				StepIndex:    idx,
				TotalSteps:   len(plan.Steps),
			})
		}
	}

	for key, b := range agg.buckets {
		b.recompute()
		agg.ordered = append(agg.ordered, key)
	}
	sort.Slice(agg.ordered, func(i, j int) bool {
		a, b := agg.buckets[agg.ordered[i]], agg.buckets[agg.ordered[j]]
		if !a.DateSample.Equal(b.DateSample.Time) {
			return a.DateSample.After(b.DateSample.Time)
		}
		return b.Key.Before(a.Key)
	})
	return agg
}

// Len returns the number of buckets.
func (a *Aggregate) Len() int {
	return len(a.ordered)
}

// Buckets returns every bucket, most recent first. Item slices are shared
// with the aggregate and must be treated as read-only.
func (a *Aggregate) Buckets() []Bucket {
	out := make([]Bucket, 0, len(a.ordered))
	for _, k := range a.ordered {
		out = append(out, *a.buckets[k])
	}
	return out
}

// Bucket returns the bucket for a month.
func (a *Aggregate) Bucket(k core.MonthKey) (Bucket, bool) {
	b, ok := a.buckets[k]
	if !ok {
		return Bucket{}, false
	}
	return *b, true
}

// Years returns the distinct bucket years, most recent first.
func (a *Aggregate) Years() []int {
	var years []int
	seen := make(map[int]bool)
	for _, k := range a.ordered {
		y := a.buckets[k].Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// YearBuckets returns the buckets of one year, most recent first.
func (a *Aggregate) YearBuckets(year int) []Bucket {
	var out []Bucket
	for _, k := range a.ordered {
		if b := a.buckets[k]; b.Year() == year {
			out = append(out, *b)
		}
	}
	return out
}

// Total returns the amount left to invoice across every bucket.
func (a *Aggregate) Total() decimal.Decimal {
	total := decimal.Zero
	for _, b := range a.buckets {
		total = total.Add(b.Total)
	}
	return total
}

// ToggleStep returns a copy of plan with the invoiced flag of one step
// flipped. The input plan is not modified. A step that failed to decode
// cannot be toggled.
func ToggleStep(plan core.BillingPlan, stepIndex int) (core.BillingPlan, error) {
	if stepIndex < 0 || stepIndex >= len(plan.Steps) {
		return core.BillingPlan{}, fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, stepIndex, len(plan.Steps))
	}
	if err := plan.Steps[stepIndex].Validate(); err != nil {
		return core.BillingPlan{}, fmt.Errorf("step %d: %w", stepIndex, err)
	}
	out := plan
	out.Steps = make([]core.BillingStep, len(plan.Steps))
	copy(out.Steps, plan.Steps)
	out.Steps[stepIndex].Invoiced = !out.Steps[stepIndex].Invoiced
	return out, nil
}
