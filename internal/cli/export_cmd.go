package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"facturation/internal/billing"
	"facturation/internal/export"
)

func newExportCmd(app *App, opts *rootOptions) *cobra.Command {
	var year, month, format, dest string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export billing rows to an xlsx or pdf file",
		Long: `Export billing rows to a spreadsheet or a PDF. Without --out the file
is named export-facturation-<year|toutes>.<format> in the current
directory; --out - writes to stdout.

Examples:
  facturationctl export --year 2025
  facturationctl export --month 2025-03 --format pdf
  facturationctl export --out - > all.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "xlsx" && format != "pdf" {
				return fmt.Errorf("invalid format %q: must be xlsx or pdf", format)
			}
			f, err := billing.ParseFilter(year, month)
			if err != nil {
				return err
			}

			l := opts.locale(app)
			rows, err := app.Billing.Export(cmd.Context(), f, l)
			if err != nil {
				return err
			}
			var body []byte
			if format == "pdf" {
				body, err = export.BuildPDF(rows, l, export.Title(f, l))
			} else {
				body, err = export.BuildXLSX(rows, l)
			}
			if err != nil {
				return fmt.Errorf("render %s: %w", format, err)
			}

			if dest == "-" {
				_, err = out(cmd).Write(body)
				return err
			}
			if dest == "" {
				dest = export.FilenameFor(f, format)
			}
			if err := os.WriteFile(dest, body, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d row(s) to %s\n", len(rows), dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&year, "year", "", "Year to export, empty or \"toutes\" for all")
	cmd.Flags().StringVar(&month, "month", "", "Month to export (YYYY-MM or label); overrides --year")
	cmd.Flags().StringVar(&format, "format", "xlsx", "File format: xlsx or pdf")
	cmd.Flags().StringVar(&dest, "out", "", "Destination file, - for stdout")
	return cmd
}
