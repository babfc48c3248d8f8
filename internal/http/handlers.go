package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/crm"
	"facturation/internal/export"
	"facturation/internal/log"
	"facturation/internal/observability/metrics"
	"facturation/internal/services"
)

const maxPlanBody = 1 << 20

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	agg, err := s.billing.Aggregate(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	l := parseLocale(r, s.locale)
	writeJSON(w, http.StatusOK, map[string]any{
		"months":   toMonths(agg.Buckets(), l),
		"total":    agg.Total(),
		"rejected": len(agg.Rejected),
	})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	agg, err := s.billing.Aggregate(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	l := parseLocale(r, s.locale)
	years := make([]yearJSON, 0)
	for _, y := range agg.Years() {
		buckets := agg.YearBuckets(y)
		yj := yearJSON{Year: y, Total: decimal.Zero, Months: toMonths(buckets, l)}
		for _, b := range buckets {
			yj.Total = yj.Total.Add(b.Total)
		}
		years = append(years, yj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"years": years})
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	key, err := parseMonthKey(r)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	q := parseQuery(r)
	view, err := s.billing.Month(r.Context(), key, q)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, monthDetailJSON{
		Month:           toMonth(view.Bucket, parseLocale(r, s.locale)),
		Search:          q.Search,
		Sort:            string(q.Sort.Key),
		Dir:             q.Sort.Dir.String(),
		ToBeInvoiced:    toItems(view.Items.ToBeInvoiced),
		AlreadyInvoiced: toItems(view.Items.AlreadyInvoiced),
	})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.billing.Plan(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlan(plan))
}

func (s *Server) handlePutPlan(w http.ResponseWriter, r *http.Request) {
	var plan core.BillingPlan
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlanBody))
	if err := dec.Decode(&plan); err != nil {
		s.writeError(w, r, log.OpSave, &services.ValidationError{Err: fmt.Errorf("decode plan: %w", err)})
		return
	}
	plan.DocID = chi.URLParam(r, "docID")

	saved, err := s.billing.SavePlan(r.Context(), plan)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlan(saved))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	idx, err := parseStepIndex(r)
	if err != nil {
		s.writeError(w, r, log.OpToggle, err)
		return
	}
	if _, err := s.billing.ToggleInvoiced(r.Context(), docID, idx); err != nil {
		s.writeError(w, r, log.OpToggle, err)
		return
	}
	plan, err := s.billing.Plan(r.Context(), docID)
	if err != nil {
		s.writeError(w, r, log.OpToggle, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlan(plan))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "xlsx", export.XLSXContentType, func(rows []billing.Row, l core.Locale, _ string) ([]byte, error) {
		return export.BuildXLSX(rows, l)
	})
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "pdf", export.PDFContentType, export.BuildPDF)
}

type renderFunc func(rows []billing.Row, l core.Locale, title string) ([]byte, error)

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, format, contentType string, render renderFunc) {
	f, err := parseFilter(r)
	if err != nil {
		metrics.ObserveExport(format, err)
		s.writeError(w, r, log.OpExport, err)
		return
	}
	l := parseLocale(r, s.locale)
	rows, err := s.billing.Export(r.Context(), f, l)
	if err == nil {
		var body []byte
		body, err = render(rows, l, export.Title(f, l))
		if err == nil {
			metrics.ObserveExport(format, nil)
			name := export.FilenameFor(f, format)
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			log.FromContext(r.Context()).InfoContext(r.Context(), "Export served",
				log.FieldOperation, log.OpExport, "format", format, log.FieldCount, len(rows))
			return
		}
	}
	metrics.ObserveExport(format, err)
	s.writeError(w, r, log.OpExport, err)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	rows, err := s.billing.Reconciliation(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpReconcile, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": toSummaries(rows)})
}

func (s *Server) handleQuotationSearch(w http.ResponseWriter, r *http.Request) {
	if s.quotations == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "quotation lookup not configured")
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		s.writeError(w, r, log.OpRead, &paramError{"search term", term})
		return
	}
	found, err := s.quotations.SearchQuotations(r.Context(), term)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	if found == nil {
		found = []crm.Quotation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotations": found})
}
