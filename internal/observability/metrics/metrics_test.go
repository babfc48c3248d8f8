package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorsAreExposed(t *testing.T) {
	Init()
	Init()

	Billing{}.ObserveLoad(10*time.Millisecond, 4, 1, nil)
	Billing{}.ObserveToggle(errors.New("store down"))
	ObserveExport("xlsx", nil)
	ObserveHTTP(http.MethodGet, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"facturation_month_buckets 4",
		"facturation_rejected_steps 1",
		`facturation_invoiced_toggles_total{result="error"} 1`,
		`facturation_exports_total{format="xlsx",result="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
}
