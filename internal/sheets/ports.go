// Package sheets mirrors the billing export into spreadsheet tabs, one
// per year.
package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"facturation/internal/billing"
	"facturation/internal/core"
)

// DefaultBaseName is the tab name suffix; tabs are titled "<year> <base>".
const DefaultBaseName = "Facturation"

// RowWriter replaces the whole content of one tab.
type RowWriter interface {
	ReplaceRows(ctx context.Context, sheet string, header []string, rows [][]any) error
}

// YearSheetName returns "<year> <base>" unless base already starts with a
// four-digit year.
func YearSheetName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseName
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// Table converts export rows into sheet cells. Amounts are numbers so the
// spreadsheet can sum them.
func Table(rows []billing.Row, l core.Locale) ([]string, [][]any) {
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		amount, _ := r.Amount.Float64()
		revision, _ := r.Revision.Float64()
		values = append(values, []any{r.Month, r.Project, r.Step, amount, revision, r.Invoiced, r.Comment, r.Author})
	}
	return billing.Headers(l), values
}
