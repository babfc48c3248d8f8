// Package cli implements the facturationctl operator commands on top of
// the billing service.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/services"
)

// Billing is the subset of the billing service the commands drive.
type Billing interface {
	Aggregate(ctx context.Context) (*billing.Aggregate, error)
	Month(ctx context.Context, key core.MonthKey, q billing.Query) (services.MonthView, error)
	ToggleInvoiced(ctx context.Context, docID string, stepIndex int) (*billing.Aggregate, error)
	Export(ctx context.Context, f billing.Filter, l core.Locale) ([]billing.Row, error)
	Reconciliation(ctx context.Context) ([]billing.PlanSummary, error)
}

// App holds what the commands need.
type App struct {
	Billing   Billing
	Locale    core.Locale
	JWTSecret []byte
	// IsTerminal reports whether stdout is a terminal; auto output picks
	// tables for terminals and JSON otherwise.
	IsTerminal func() bool
}

// Output selects the rendering of command results.
type Output string

const (
	OutputAuto  Output = "auto"
	OutputTable Output = "table"
	OutputJSON  Output = "json"
)

var _ pflag.Value = (*Output)(nil)

func (o *Output) String() string { return string(*o) }

func (o *Output) Set(s string) error {
	switch v := Output(strings.ToLower(strings.TrimSpace(s))); v {
	case OutputAuto, OutputTable, OutputJSON:
		*o = v
		return nil
	}
	return fmt.Errorf("must be one of auto, table, json")
}

func (o *Output) Type() string { return "output" }

type rootOptions struct {
	output Output
	lang   string
}

// NewRootCmd creates the top-level "facturationctl" command and registers
// all subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	opts := &rootOptions{output: OutputAuto}

	root := &cobra.Command{
		Use:           "facturationctl",
		Short:         "Inspect and operate billing plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addRootFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newMonthsCmd(app, opts),
		newShowCmd(app, opts),
		newExportCmd(app, opts),
		newToggleCmd(app, opts),
		newReconcileCmd(app, opts),
		newTokenCmd(app),
	)

	return root
}

func addRootFlags(fs *pflag.FlagSet, opts *rootOptions) {
	fs.VarP(&opts.output, "output", "o", "Output format: auto, table or json")
	fs.StringVar(&opts.lang, "lang", "", "Label language (fr or en), defaults to BILLING_LOCALE")
}

func (o *rootOptions) locale(app *App) core.Locale {
	if o.lang != "" {
		return core.ParseLocale(o.lang)
	}
	if app.Locale.IsValid() {
		return app.Locale
	}
	return core.LocaleFR
}

func (o *rootOptions) json(app *App) bool {
	switch o.output {
	case OutputJSON:
		return true
	case OutputTable:
		return false
	}
	return app.IsTerminal == nil || !app.IsTerminal()
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
