package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"facturation/internal/auth"
	"facturation/internal/billing"
	"facturation/internal/core"
)

// paramError marks a malformed path or query parameter.
type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.name, e.value)
}

// parseMonthKey reads the {year} and {month} path segments. The month is
// a number from 1 to 12.
func parseMonthKey(r *http.Request) (core.MonthKey, error) {
	ys, ms := chi.URLParam(r, "year"), chi.URLParam(r, "month")
	year, err := strconv.Atoi(ys)
	if err != nil || year < 1 || year > 9999 {
		return core.MonthKey{}, &paramError{"year", ys}
	}
	month, err := strconv.Atoi(ms)
	if err != nil || month < 1 || month > 12 {
		return core.MonthKey{}, &paramError{"month", ms}
	}
	return core.MonthKey{Year: year, Month: time.Month(month)}, nil
}

func parseStepIndex(r *http.Request) (int, error) {
	s := chi.URLParam(r, "index")
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, &paramError{"step index", s}
	}
	return i, nil
}

// parseQuery builds the month table query from q, sort and dir. The
// current user comes from the request identity.
func parseQuery(r *http.Request) billing.Query {
	v := r.URL.Query()
	return billing.ParseQuery(v.Get("q"), v.Get("sort"), v.Get("dir"), auth.UserFromContext(r.Context()))
}

func parseFilter(r *http.Request) (billing.Filter, error) {
	v := r.URL.Query()
	f, err := billing.ParseFilter(v.Get("year"), v.Get("month"))
	if err != nil {
		return billing.Filter{}, &paramError{"export filter", strings.TrimSpace(v.Get("year") + " " + v.Get("month"))}
	}
	return f, nil
}

// parseLocale picks the locale from ?lang=, then Accept-Language, then def.
func parseLocale(r *http.Request, def core.Locale) core.Locale {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return core.ParseLocale(lang)
	}
	if al := r.Header.Get("Accept-Language"); al != "" {
		first, _, _ := strings.Cut(al, ",")
		return core.ParseLocale(first)
	}
	return def
}
