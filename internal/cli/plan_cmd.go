package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"facturation/internal/core"
)

func newToggleCmd(app *App, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <docID> <stepIndex>",
		Short: "Flip the invoiced flag of one plan step",
		Long: `Flip the invoiced flag of one plan step. The step index counts from 0
in plan order.

Examples:
  facturationctl toggle 1042 1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil || idx < 0 {
				return fmt.Errorf("invalid step index %q", args[1])
			}
			agg, err := app.Billing.ToggleInvoiced(cmd.Context(), args[0], idx)
			if err != nil {
				return err
			}

			if opts.json(app) {
				return renderJSON(out(cmd), map[string]any{
					"docId":     args[0],
					"stepIndex": idx,
					"total":     agg.Total(),
				})
			}
			fmt.Fprintf(out(cmd), "Toggled step %d of plan %s, %s left to invoice\n", idx, args[0], core.FormatEuros(agg.Total()))
			return nil
		},
	}
}

func newReconcileCmd(app *App, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare each plan with its quotation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := app.Billing.Reconciliation(cmd.Context())
			if err != nil {
				return err
			}

			if opts.json(app) {
				type summary struct {
					DocID       string  `json:"docId"`
					QuotationID int64   `json:"quotationId"`
					Title       string  `json:"title"`
					Steps       int     `json:"steps"`
					Planned     string  `json:"planned"`
					Invoiced    string  `json:"invoiced"`
					Remaining   string  `json:"remaining"`
					Quotation   *string `json:"quotation"`
					Gap         *string `json:"gap"`
				}
				res := make([]summary, 0, len(rows))
				for _, r := range rows {
					s := summary{
						DocID:       r.DocID,
						QuotationID: r.QuotationID,
						Title:       r.Title,
						Steps:       r.Steps,
						Planned:     r.Planned.StringFixed(2),
						Invoiced:    r.Invoiced.StringFixed(2),
						Remaining:   r.Remaining.StringFixed(2),
					}
					if r.HasQuotation {
						q, g := r.Quotation.StringFixed(2), r.Gap.StringFixed(2)
						s.Quotation, s.Gap = &q, &g
					}
					res = append(res, s)
				}
				return renderJSON(out(cmd), res)
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				quotation, gap := "-", "-"
				if r.HasQuotation {
					quotation, gap = core.FormatEuros(r.Quotation), core.FormatEuros(r.Gap)
				}
				table = append(table, []string{
					r.DocID,
					r.Title,
					strconv.Itoa(r.Steps),
					core.FormatEuros(r.Planned),
					core.FormatEuros(r.Invoiced),
					core.FormatEuros(r.Remaining),
					quotation,
					gap,
				})
			}
			return renderTable(out(cmd), []string{"DOC", "PROJECT", "STEPS", "PLANNED", "INVOICED", "REMAINING", "QUOTATION", "GAP"}, table)
		},
	}
}
