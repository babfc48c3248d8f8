package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"facturation/internal/billing"
	"facturation/internal/core"
)

func newMonthsCmd(app *App, opts *rootOptions) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "months",
		Short: "List billing months, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, err := app.Billing.Aggregate(cmd.Context())
			if err != nil {
				return err
			}
			buckets := agg.Buckets()
			if year > 0 {
				buckets = agg.YearBuckets(year)
			}

			l := opts.locale(app)
			if opts.json(app) {
				res := make([]monthOut, 0, len(buckets))
				for _, b := range buckets {
					res = append(res, toMonthOut(b, l))
				}
				return renderJSON(out(cmd), res)
			}

			rows := make([][]string, 0, len(buckets))
			for _, b := range buckets {
				m := toMonthOut(b, l)
				rows = append(rows, []string{
					m.Key,
					m.Label,
					core.FormatEuros(m.Total),
					core.FormatEuros(m.Reliable100),
					core.FormatEuros(m.Reliable75),
					core.FormatEuros(m.Other),
					core.FormatEuros(m.AlreadyInvoiced),
				})
			}
			if err := renderTable(out(cmd), []string{"KEY", "MONTH", "TO INVOICE", "100%", "75%", "OTHER", "INVOICED"}, rows); err != nil {
				return err
			}
			if n := len(agg.Rejected); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d step(s) rejected, see logs\n", n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Only list months of this year")
	return cmd
}

func newShowCmd(app *App, opts *rootOptions) *cobra.Command {
	var search, sortKey, dir, user string

	cmd := &cobra.Command{
		Use:   "show <YYYY-MM>",
		Short: "Show the items of one month",
		Long: `Show the items of one month, split into steps still to invoice and
steps already invoiced. The month accepts YYYY-MM or a label such as
"mars 2025".

Examples:
  facturationctl show 2025-03
  facturationctl show 2025-03 --q refonte --sort amount --dir desc
  facturationctl show "mars 2025" --user claire.martin@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := core.ParseMonthKey(args[0])
			if err != nil {
				return err
			}
			view, err := app.Billing.Month(cmd.Context(), key, billing.ParseQuery(search, sortKey, dir, user))
			if err != nil {
				return err
			}

			l := opts.locale(app)
			if opts.json(app) {
				return renderJSON(out(cmd), struct {
					Month           monthOut  `json:"month"`
					ToBeInvoiced    []itemOut `json:"toBeInvoiced"`
					AlreadyInvoiced []itemOut `json:"alreadyInvoiced"`
				}{
					Month:           toMonthOut(view.Bucket, l),
					ToBeInvoiced:    toItemsOut(view.Items.ToBeInvoiced),
					AlreadyInvoiced: toItemsOut(view.Items.AlreadyInvoiced),
				})
			}

			w := out(cmd)
			fmt.Fprintf(w, "%s: %s to invoice (100%%: %s, 75%%: %s, other: %s)\n\n",
				view.Key.Label(l),
				core.FormatEuros(view.Totals.ToBeInvoiced),
				core.FormatEuros(view.Totals.Reliable100),
				core.FormatEuros(view.Totals.Reliable75),
				core.FormatEuros(view.Totals.Other))
			if err := renderTable(w, itemHeaders, itemRows(view.Items.ToBeInvoiced)); err != nil {
				return err
			}
			fmt.Fprintf(w, "\nAlready invoiced: %s\n\n", core.FormatEuros(view.Totals.AlreadyInvoiced))
			return renderTable(w, itemHeaders, itemRows(view.Items.AlreadyInvoiced))
		},
	}

	cmd.Flags().StringVar(&search, "q", "", "Search term")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key: date, amount, reliability, generatedBy, title, stepsComment, docId or quotationId")
	cmd.Flags().StringVar(&dir, "dir", "asc", "Sort direction: asc or desc")
	cmd.Flags().StringVar(&user, "user", "", "Email of the current user, listed first")
	return cmd
}
