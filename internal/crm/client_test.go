package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturation/internal/log"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api/v2", Token: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestQuotationCachedAndAuthorized(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v2/quotations/42", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":42,"title":"Site","pre_tax_amount":"1000","tax_amount":200,"total_amount":"1200.00"}`)
	})

	for i := 0; i < 3; i++ {
		q, err := c.Quotation(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, q.TotalTTC().Equal(decimal.NewFromInt(1200)))
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTotalTTCFallback(t *testing.T) {
	q := Quotation{PreTaxAmount: decimal.NewFromInt(100), TaxAmount: decimal.NewFromInt(20)}
	assert.True(t, q.TotalTTC().Equal(decimal.NewFromInt(120)))
}

func TestErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/quotations/1":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v2/quotations/2":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	_, err := c.Quotation(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	_, err = c.Quotation(ctx, 2)
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
	_, err = c.Quotation(ctx, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestListQuotationsPaginatesBothShapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"items":[{"id":1},{"id":2}]}`)
		case "2":
			fmt.Fprint(w, `[{"id":3}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	qs, err := c.ListQuotations(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, int64(3), qs[2].ID)
	assert.Equal(t, 3, c.Cache().Size())
}

func TestSearchQuotations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refonte", r.URL.Query().Get("search"))
		fmt.Fprint(w, `{"items":[{"id":9,"title":"Refonte"}]}`)
	})
	qs, err := c.SearchQuotations(context.Background(), " refonte ")
	require.NoError(t, err)
	require.Len(t, qs, 1)

	empty, err := c.SearchQuotations(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchQuotationsCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.SearchQuotations(ctx, "x")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestQuotationTotalsSkipsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/v2/quotations/"))
		if id == 404 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id":%d,"total_amount":%d}`, id, id*10)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	c, err := New(Config{
		BaseURL: srv.URL + "/api/v2",
		Timeout: time.Second,
		Logger:  log.New(log.Config{Output: &buf, Level: slog.LevelInfo}),
	})
	require.NoError(t, err)

	totals, err := c.QuotationTotals(context.Background(), []int64{1, 2, 404, 3})
	require.NoError(t, err)
	assert.Len(t, totals, 3)
	assert.True(t, totals[3].Equal(decimal.NewFromInt(30)))

	assert.Contains(t, buf.String(), "component=crm")
	assert.Contains(t, buf.String(), "quotation_id=404")
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
