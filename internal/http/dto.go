package http

import (
	"github.com/shopspring/decimal"

	"facturation/internal/billing"
	"facturation/internal/core"
)

type itemJSON struct {
	DocID        string           `json:"docId"`
	QuotationID  int64            `json:"quotationId"`
	Title        string           `json:"title"`
	GeneratedBy  string           `json:"generatedBy"`
	Date         string           `json:"date"`
	Amount       decimal.Decimal  `json:"amount"`
	Revision     *decimal.Decimal `json:"revision"`
	Sum          decimal.Decimal  `json:"sum"`
	Invoiced     bool             `json:"invoiced"`
	Reliability  core.Reliability `json:"reliability"`
	StepsComment string           `json:"stepsComment"`
	StepIndex    int              `json:"stepIndex"`
	Position     string           `json:"position"`
}

type totalsJSON struct {
	ToBeInvoiced    decimal.Decimal `json:"toBeInvoiced"`
	AlreadyInvoiced decimal.Decimal `json:"alreadyInvoiced"`
	Reliable100     decimal.Decimal `json:"reliable100"`
	Reliable75      decimal.Decimal `json:"reliable75"`
	Other           decimal.Decimal `json:"other"`
}

type monthJSON struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	DateSample string          `json:"dateSample"`
	Total      decimal.Decimal `json:"total"`
	Totals     totalsJSON      `json:"totals"`
	Items      int             `json:"items"`
}

type yearJSON struct {
	Year   int             `json:"year"`
	Total  decimal.Decimal `json:"total"`
	Months []monthJSON     `json:"months"`
}

type monthDetailJSON struct {
	Month           monthJSON  `json:"month"`
	Search          string     `json:"search,omitempty"`
	Sort            string     `json:"sort,omitempty"`
	Dir             string     `json:"dir"`
	ToBeInvoiced    []itemJSON `json:"toBeInvoiced"`
	AlreadyInvoiced []itemJSON `json:"alreadyInvoiced"`
}

type planJSON struct {
	DocID        string             `json:"docId"`
	QuotationID  int64              `json:"quotationId"`
	ProjectTitle string             `json:"projectTitle"`
	Title        string             `json:"title"`
	GeneratedBy  string             `json:"generatedBy"`
	Total        decimal.Decimal    `json:"total"`
	Steps        []core.BillingStep `json:"steps"`
}

type summaryJSON struct {
	DocID       string           `json:"docId"`
	QuotationID int64            `json:"quotationId"`
	Title       string           `json:"title"`
	GeneratedBy string           `json:"generatedBy"`
	Steps       int              `json:"steps"`
	Planned     decimal.Decimal  `json:"planned"`
	Invoiced    decimal.Decimal  `json:"invoiced"`
	Remaining   decimal.Decimal  `json:"remaining"`
	Quotation   *decimal.Decimal `json:"quotation"`
	Gap         *decimal.Decimal `json:"gap"`
}

func toItems(items []billing.Item) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		j := itemJSON{
			DocID:        it.DocID,
			QuotationID:  it.QuotationID,
			Title:        it.Title,
			GeneratedBy:  it.GeneratedBy,
			Date:         it.Date.String(),
			Amount:       it.Amount,
			Sum:          it.Sum(),
			Invoiced:     it.Invoiced,
			Reliability:  it.Reliability,
			StepsComment: it.StepsComment,
			StepIndex:    it.StepIndex,
			Position:     it.Position(),
		}
		if it.Revision.Valid {
			rev := it.Revision.Decimal
			j.Revision = &rev
		}
		out = append(out, j)
	}
	return out
}

func toTotals(t billing.Totals) totalsJSON {
	return totalsJSON(t)
}

func toMonth(b billing.Bucket, l core.Locale) monthJSON {
	return monthJSON{
		Key:        b.Key.String(),
		Label:      b.Label(l),
		Year:       b.Key.Year,
		Month:      int(b.Key.Month),
		DateSample: b.DateSample.String(),
		Total:      b.Total,
		Totals:     toTotals(billing.Classify(b)),
		Items:      len(b.Items),
	}
}

func toMonths(buckets []billing.Bucket, l core.Locale) []monthJSON {
	out := make([]monthJSON, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, toMonth(b, l))
	}
	return out
}

func toPlan(p core.BillingPlan) planJSON {
	steps := p.Steps
	if steps == nil {
		steps = []core.BillingStep{}
	}
	return planJSON{
		DocID:        p.DocID,
		QuotationID:  p.QuotationID,
		ProjectTitle: p.ProjectTitle,
		Title:        p.Title(),
		GeneratedBy:  p.GeneratedBy,
		Total:        p.Total(),
		Steps:        steps,
	}
}

func toSummaries(in []billing.PlanSummary) []summaryJSON {
	out := make([]summaryJSON, 0, len(in))
	for _, s := range in {
		j := summaryJSON{
			DocID:       s.DocID,
			QuotationID: s.QuotationID,
			Title:       s.Title,
			GeneratedBy: s.GeneratedBy,
			Steps:       s.Steps,
			Planned:     s.Planned,
			Invoiced:    s.Invoiced,
			Remaining:   s.Remaining,
		}
		if s.HasQuotation {
			q, gap := s.Quotation, s.Gap
			j.Quotation, j.Gap = &q, &gap
		}
		out = append(out, j)
	}
	return out
}
