package billing

import (
	"fmt"
	"strconv"
	"strings"

	"facturation/internal/core"

	"github.com/shopspring/decimal"
)

// Row is one flat export record.
type Row struct {
	Key      core.MonthKey
	Month    string
	Project  string
	Step     string
	Amount   decimal.Decimal
	Revision decimal.Decimal
	Invoiced string
	Comment  string
	Author   string
}

// Strings returns the row cells in header order, amounts as plain decimals.
func (r Row) Strings() []string {
	return []string{r.Month, r.Project, r.Step, r.Amount.String(), r.Revision.String(), r.Invoiced, r.Comment, r.Author}
}

// Filter scopes a projection. A zero Year includes every year; a zero
// Month includes every month. When Month is set it alone selects the
// bucket and Year is ignored.
type Filter struct {
	Year  int
	Month core.MonthKey
}

// ParseFilter reads a year ("2025", "" or "toutes"/"all") and a month
// ("2025-03", "March 2025", "mars 2025" or "").
func ParseFilter(year, month string) (Filter, error) {
	var f Filter
	year = strings.TrimSpace(year)
	switch strings.ToLower(year) {
	case "", "toutes", "all":
	default:
		y, err := strconv.Atoi(year)
		if err != nil || y <= 0 {
			return Filter{}, fmt.Errorf("invalid year %q", year)
		}
		f.Year = y
	}
	if strings.TrimSpace(month) != "" {
		k, err := core.ParseMonthKey(month)
		if err != nil {
			return Filter{}, err
		}
		f.Month = k
	}
	return f, nil
}

func (f Filter) match(b Bucket) bool {
	if !f.Month.IsZero() {
		return b.Key == f.Month
	}
	return f.Year == 0 || b.Year() == f.Year
}

// Headers returns the export column titles.
func Headers(l core.Locale) []string {
	if l == core.LocaleEN {
		return []string{"Month", "Project", "Step", "Amount", "Revision", "Invoiced", "Comment", "Author"}
	}
	return []string{"Mois", "Projet", "Etape", "Montant", "Révision", "Facturé", "Commentaire", "GénéréPar"}
}

// SheetName returns the name of the single export sheet.
func SheetName(l core.Locale) string {
	if l == core.LocaleEN {
		return "Billing"
	}
	return "Facturation"
}

// Project flattens the buckets matching f into rows, most recent month
// first and items in bucket order. No match yields an empty, non-nil slice.
func Project(agg *Aggregate, f Filter, l core.Locale) []Row {
	rows := []Row{}
	if agg == nil {
		return rows
	}
	for _, b := range agg.Buckets() {
		if !f.match(b) {
			continue
		}
		label := b.Label(l)
		for _, it := range b.Items {
			rev := decimal.Zero
			if it.Revision.Valid {
				rev = it.Revision.Decimal
			}
			rows = append(rows, Row{
				Key:      b.Key,
				Month:    label,
				Project:  it.Title,
				Step:     it.Position(),
				Amount:   it.Amount,
				Revision: rev,
				Invoiced: l.YesNo(it.Invoiced),
				Comment:  it.StepsComment,
				Author:   it.GeneratedBy,
			})
		}
	}
	return rows
}
