package billing

import (
	"sort"

	"facturation/internal/core"

	"github.com/shopspring/decimal"
)

// PlanSummary compares one plan with its quotation.
type PlanSummary struct {
	DocID       string
	QuotationID int64
	Title       string
	GeneratedBy string
	Steps       int
	Planned     decimal.Decimal
	Invoiced    decimal.Decimal
	Remaining   decimal.Decimal
	// Quotation and Gap are only meaningful when HasQuotation is set.
	// Gap is Planned minus Quotation.
	Quotation    decimal.Decimal
	Gap          decimal.Decimal
	HasQuotation bool
}

// Reconcile summarizes every plan. quotationTotals maps quotation ids to
// their tax-inclusive totals; missing ids leave HasQuotation false.
// Rows are ordered by remaining amount, largest first, then by doc id.
func Reconcile(plans []core.BillingPlan, quotationTotals map[int64]decimal.Decimal) []PlanSummary {
	out := make([]PlanSummary, 0, len(plans))
	for _, p := range plans {
		s := PlanSummary{
			DocID:       p.DocID,
			QuotationID: p.QuotationID,
			Title:       p.Title(),
			GeneratedBy: p.GeneratedBy,
			Steps:       len(p.Steps),
			Planned:     decimal.Zero,
			Invoiced:    decimal.Zero,
			Remaining:   decimal.Zero,
		}
		for _, step := range p.Steps {
			if step.Validate() != nil {
				continue
			}
			sum := step.Sum()
			s.Planned = s.Planned.Add(sum)
			if step.Invoiced {
				s.Invoiced = s.Invoiced.Add(sum)
			} else {
				s.Remaining = s.Remaining.Add(sum)
			}
		}
		if q, ok := quotationTotals[p.QuotationID]; ok {
			s.HasQuotation = true
			s.Quotation = q
			s.Gap = s.Planned.Sub(q)
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Remaining.Cmp(out[j].Remaining); c != 0 {
			return c > 0
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}
