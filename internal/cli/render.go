package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"facturation/internal/billing"
	"facturation/internal/core"
)

// renderTable writes an aligned table with a separator under the header.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	sep := make([]string, len(headers))
	for i, h := range headers {
		sep[i] = strings.Repeat("-", len([]rune(h)))
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type monthOut struct {
	Key             string          `json:"key"`
	Label           string          `json:"label"`
	Total           decimal.Decimal `json:"total"`
	AlreadyInvoiced decimal.Decimal `json:"alreadyInvoiced"`
	Reliable100     decimal.Decimal `json:"reliable100"`
	Reliable75      decimal.Decimal `json:"reliable75"`
	Other           decimal.Decimal `json:"other"`
	Items           int             `json:"items"`
}

func toMonthOut(b billing.Bucket, l core.Locale) monthOut {
	t := billing.Classify(b)
	return monthOut{
		Key:             b.Key.String(),
		Label:           b.Label(l),
		Total:           b.Total,
		AlreadyInvoiced: t.AlreadyInvoiced,
		Reliable100:     t.Reliable100,
		Reliable75:      t.Reliable75,
		Other:           t.Other,
		Items:           len(b.Items),
	}
}

type itemOut struct {
	DocID       string           `json:"docId"`
	Title       string           `json:"title"`
	Step        string           `json:"step"`
	StepIndex   int              `json:"stepIndex"`
	Date        string           `json:"date"`
	Amount      decimal.Decimal  `json:"amount"`
	Revision    decimal.Decimal  `json:"revision"`
	Invoiced    bool             `json:"invoiced"`
	Reliability core.Reliability `json:"reliability"`
	GeneratedBy string           `json:"generatedBy"`
	Comment     string           `json:"comment,omitempty"`
}

func toItemsOut(items []billing.Item) []itemOut {
	res := make([]itemOut, 0, len(items))
	for _, it := range items {
		rev := decimal.Zero
		if it.Revision.Valid {
			rev = it.Revision.Decimal
		}
		res = append(res, itemOut{
			DocID:       it.DocID,
			Title:       it.Title,
			Step:        it.Position(),
			StepIndex:   it.StepIndex,
			Date:        it.Date.String(),
			Amount:      it.Amount,
			Revision:    rev,
			Invoiced:    it.Invoiced,
			Reliability: it.Reliability,
			GeneratedBy: it.GeneratedBy,
			Comment:     it.StepsComment,
		})
	}
	return res
}

func itemRows(items []billing.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rev := ""
		if it.Revision.Valid {
			rev = core.FormatEuros(it.Revision.Decimal)
		}
		rows = append(rows, []string{
			it.DocID,
			it.Title,
			it.Position(),
			it.Date.String(),
			core.FormatEuros(it.Amount),
			rev,
			it.Reliability.String(),
			it.GeneratedBy,
		})
	}
	return rows
}

var itemHeaders = []string{"DOC", "PROJECT", "STEP", "DATE", "AMOUNT", "REVISION", "RELIABILITY", "AUTHOR"}
