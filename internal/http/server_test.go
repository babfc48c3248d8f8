package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"facturation/internal/auth"
	"facturation/internal/crm"
	"facturation/internal/log"
	"facturation/internal/services"
	"facturation/internal/store/memory"
)

const seed = `
billingPlans:
  "1":
    quotationId: 1
    projectTitle: "Atelier &amp; Co"
    generatedBy: alice@example.com
    steps:
      - {amount: 1000, revision: 0, date: "2025-03-10", invoiced: false, reliability: 100}
      - {amount: 200, date: "2025-01-05", invoiced: true, reliability: 75}
  "2":
    quotationId: 2
    projectTitle: "Boutique"
    generatedBy: bob@example.com
    steps:
      - {amount: 500, revision: 50, date: "2025-03-20", invoiced: false, reliability: 75}
      - {amount: 300, date: "2024-12-01", invoiced: false}
`

type fixture struct {
	t       *testing.T
	server  *Server
	service *services.BillingService
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	mem := memory.New()
	require.NoError(t, mem.Load([]byte(seed)))
	svc := services.NewBillingService(mem, services.WithLogger(log.Discard()))

	opts = append(opts, WithReadiness(mem))
	srv, err := NewServer(cfg, svc, log.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(srv.stop)
	return &fixture{t: t, server: srv, service: svc}
}

func (f *fixture) do(method, target string, body []byte, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestMonthsListedNewestFirst(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/months", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Months []monthJSON `json:"months"`
	}](t, rec)
	require.Len(t, body.Months, 3)
	assert.Equal(t, "2025-03", body.Months[0].Key)
	assert.Equal(t, "mars 2025", body.Months[0].Label)
	assert.Equal(t, "2025-01", body.Months[1].Key)
	assert.Equal(t, "2024-12", body.Months[2].Key)
	assert.Equal(t, "1550", body.Months[0].Total.String())
	assert.Equal(t, "1000", body.Months[0].Totals.Reliable100.String())
	assert.Equal(t, "550", body.Months[0].Totals.Reliable75.String())
}

func TestMonthsEnglishLabels(t *testing.T) {
	f := newFixture(t, Config{Locale: "en"})

	body := decode[struct {
		Months []monthJSON `json:"months"`
	}](t, f.do(http.MethodGet, "/api/billing/months", nil))
	require.NotEmpty(t, body.Months)
	assert.Equal(t, "March 2025", body.Months[0].Label)
}

func TestYearsGroupBuckets(t *testing.T) {
	f := newFixture(t, Config{})

	body := decode[struct {
		Years []yearJSON `json:"years"`
	}](t, f.do(http.MethodGet, "/api/billing/years", nil))
	require.Len(t, body.Years, 2)
	assert.Equal(t, 2025, body.Years[0].Year)
	assert.Len(t, body.Years[0].Months, 2)
	// The invoiced January step is not left to invoice.
	assert.Equal(t, "1550", body.Years[0].Total.String())
	assert.Equal(t, 2024, body.Years[1].Year)
}

func TestMonthDetailSelfFirst(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/months/2025/3?sort=amount&dir=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decode[monthDetailJSON](t, rec)
	require.Len(t, anon.ToBeInvoiced, 2)
	assert.Equal(t, "alice@example.com", anon.ToBeInvoiced[0].GeneratedBy)
	assert.Equal(t, "desc", anon.Dir)

	rec = f.do(http.MethodGet, "/api/billing/months/2025/3?sort=amount&dir=desc", nil, auth.HeaderUserEmail, "Bob@Example.com")
	mine := decode[monthDetailJSON](t, rec)
	require.Len(t, mine.ToBeInvoiced, 2)
	assert.Equal(t, "bob@example.com", mine.ToBeInvoiced[0].GeneratedBy)
	assert.Empty(t, mine.AlreadyInvoiced)
}

func TestMonthDetailSearch(t *testing.T) {
	f := newFixture(t, Config{})

	detail := decode[monthDetailJSON](t, f.do(http.MethodGet, "/api/billing/months/2025/3?q=atelier", nil))
	require.Len(t, detail.ToBeInvoiced, 1)
	assert.Equal(t, "Atelier & Co", detail.ToBeInvoiced[0].Title)
	assert.Equal(t, "1/2", detail.ToBeInvoiced[0].Position)
}

func TestMonthDetailErrors(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/months/2025/13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	rec = f.do(http.MethodGet, "/api/billing/months/2019/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleRederives(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/api/billing/plans/1/steps/0/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[planJSON](t, rec)
	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.Steps[0].Invoiced)

	detail := decode[monthDetailJSON](t, f.do(http.MethodGet, "/api/billing/months/2025/3", nil))
	assert.Len(t, detail.ToBeInvoiced, 1)
	assert.Len(t, detail.AlreadyInvoiced, 1)
	assert.Equal(t, "1000", detail.Month.Totals.AlreadyInvoiced.String())
	assert.Equal(t, "550", detail.Month.Total.String())
}

func TestToggleErrors(t *testing.T) {
	f := newFixture(t, Config{})

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/api/billing/plans/1/steps/7/toggle", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/billing/plans/1/steps/x/toggle", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/billing/plans/99/steps/0/toggle", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/billing/plans/1/steps/0/toggle", nil).Code)
}

func TestPutPlan(t *testing.T) {
	f := newFixture(t, Config{})

	body := []byte(`{"quotationId": 3, "projectTitle": "Nouveau", "generatedBy": "alice@example.com",
		"steps": [{"amount": "1 200,50", "date": "2025-07-01", "reliability": 100}]}`)
	rec := f.do(http.MethodPut, "/api/billing/plans/3", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[planJSON](t, rec)
	assert.Equal(t, "3", plan.DocID)
	assert.Equal(t, "1200.5", plan.Total.String())

	got := decode[planJSON](t, f.do(http.MethodGet, "/api/billing/plans/3", nil))
	assert.Equal(t, "Nouveau", got.Title)

	mismatch := []byte(`{"quotationId": 4, "steps": [{"amount": 1, "date": "2025-07-01"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/api/billing/plans/3", mismatch).Code)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/api/billing/plans/5", []byte(`{`)).Code)
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/export.xlsx?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Equal(t, `attachment; filename="export-facturation-2025.xlsx"`, rec.Header().Get("Content-Disposition"))

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Facturation")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "Mois", rows[0][0])
}

func TestExportMonthFilterNamesItsYear(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/export.pdf?month=2024-12&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "export-facturation-2024.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestExportAllYearsAndBadFilter(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/billing/export.xlsx?year=toutes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "export-facturation-toutes.xlsx")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/billing/export.xlsx?year=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/billing/export.xlsx?month=nope", nil).Code)
}

func TestReconciliationWithoutCRM(t *testing.T) {
	f := newFixture(t, Config{})

	body := decode[struct {
		Plans []summaryJSON `json:"plans"`
	}](t, f.do(http.MethodGet, "/api/billing/reconciliation", nil))
	require.Len(t, body.Plans, 2)
	for _, p := range body.Plans {
		assert.Nil(t, p.Quotation)
	}
}

type fakeSearcher struct {
	term string
	err  error
}

func (s *fakeSearcher) SearchQuotations(_ context.Context, term string) ([]crm.Quotation, error) {
	s.term = term
	if s.err != nil {
		return nil, s.err
	}
	return []crm.Quotation{{ID: 7, Number: "DE-7", Title: term}}, nil
}

func TestQuotationSearch(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/quotations/search?q=x", nil).Code)

	searcher := &fakeSearcher{}
	f = newFixture(t, Config{}, WithQuotations(searcher))
	rec := f.do(http.MethodGet, "/api/quotations/search?q=site", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "site", searcher.term)
	assert.Contains(t, rec.Body.String(), "DE-7")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/quotations/search", nil).Code)

	searcher.err = crm.ErrUnauthorized
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/quotations/search?q=site", nil).Code)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	secret := []byte("test-secret")
	f := newFixture(t, Config{JWTSecret: secret})

	rec := f.do(http.MethodGet, "/api/billing/months", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	token, err := auth.Sign("bob@example.com", secret, time.Hour)
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/billing/months/2025/3", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[monthDetailJSON](t, rec)
	assert.Equal(t, "bob@example.com", detail.ToBeInvoiced[0].GeneratedBy)

	// Probes stay open.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil).Code)
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", nil).Code)
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t, Config{RequestsPerMinute: 1})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/billing/months", nil).Code)
	rec := f.do(http.MethodGet, "/api/billing/months", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
