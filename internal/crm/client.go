// Package crm is a thin JSON client for the remote CRM/ERP API. It only
// fetches what billing needs: quotations and their totals.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"facturation/internal/cache"
	"facturation/internal/log"
)

var (
	ErrNotFound      = errors.New("crm: resource not found")
	ErrUnauthorized  = errors.New("crm: invalid or missing API token")
	ErrNotConfigured = errors.New("crm: base URL not configured")
)

// maxPages bounds paginated listings.
const maxPages = 200

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	CacheSize  int
	CacheTTL   time.Duration
	MaxLookups int
	HTTPClient *http.Client
	Logger     *log.Logger
}

type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	quotations *cache.LRU[Quotation]
	maxLookups int
	logger     *log.Logger
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse CRM base URL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	size, ttl := cfg.CacheSize, cfg.CacheTTL
	if size <= 0 {
		size = 500
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	lookups := cfg.MaxLookups
	if lookups <= 0 {
		lookups = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		baseURL:    u,
		token:      cfg.Token,
		http:       httpClient,
		quotations: cache.NewLRU[Quotation](size, ttl),
		maxLookups: lookups,
		logger:     logger.WithComponent(log.ComponentCRM),
	}, nil
}

// Cache exposes the quotation cache for sweeping and stats.
func (c *Client) Cache() *cache.LRU[Quotation] {
	return c.quotations
}

// Quotation is a commercial offer billing plans refer to.
type Quotation struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	Title        string          `json:"title"`
	CompanyName  string          `json:"company_name"`
	Status       string          `json:"status"`
	Date         string          `json:"date"`
	PreTaxAmount decimal.Decimal `json:"pre_tax_amount"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// TotalTTC returns the tax-inclusive total. Some payloads omit
// total_amount; it is then rebuilt from the pre-tax and tax parts.
func (q Quotation) TotalTTC() decimal.Decimal {
	if !q.TotalAmount.IsZero() {
		return q.TotalAmount
	}
	return q.PreTaxAmount.Add(q.TaxAmount)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode > 299:
		return nil, fmt.Errorf("CRM request %s failed: %d %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// decodeList accepts both {"items": [...]} and a bare JSON array.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Items, nil
}

// listAll walks ?page=1,2,... until a page comes back empty.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))

		data, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return nil, err
		}
		items, err := decodeList[T](data)
		if err != nil {
			return nil, fmt.Errorf("decode %s page %d: %w", path, page, err)
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	return all, nil
}

// Quotation fetches one quotation, served from cache when fresh.
func (c *Client) Quotation(ctx context.Context, id int64) (Quotation, error) {
	key := strconv.FormatInt(id, 10)
	if q, ok := c.quotations.Get(key); ok {
		return q, nil
	}
	data, err := c.do(ctx, http.MethodGet, "quotations/"+key, nil, nil)
	if err != nil {
		return Quotation{}, err
	}
	var q Quotation
	if err := json.Unmarshal(data, &q); err != nil {
		return Quotation{}, fmt.Errorf("decode quotation %d: %w", id, err)
	}
	c.quotations.Set(key, q)
	return q, nil
}

// ListQuotations returns every quotation across all pages.
func (c *Client) ListQuotations(ctx context.Context) ([]Quotation, error) {
	qs, err := listAll[Quotation](ctx, c, "quotations", nil)
	if err != nil {
		return nil, err
	}
	for _, q := range qs {
		c.quotations.Set(strconv.FormatInt(q.ID, 10), q)
	}
	return qs, nil
}

// SearchQuotations returns the first page of quotations matching term.
// Cancelling ctx aborts the request.
func (c *Client) SearchQuotations(ctx context.Context, term string) ([]Quotation, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Quotation{}, nil
	}
	data, err := c.do(ctx, http.MethodGet, "quotations", url.Values{"search": {term}}, nil)
	if err != nil {
		return nil, err
	}
	qs, err := decodeList[Quotation](data)
	if err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	if qs == nil {
		qs = []Quotation{}
	}
	return qs, nil
}

// QuotationTotals looks up the tax-inclusive totals of ids with bounded
// concurrency. Unknown quotations are skipped; other errors abort.
func (c *Client) QuotationTotals(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	type result struct {
		id    int64
		total decimal.Decimal
	}
	results := make([]*result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxLookups)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			q, err := c.Quotation(gctx, id)
			if errors.Is(err, ErrNotFound) {
				c.logger.WarnContext(gctx, "Quotation not found in CRM", log.FieldQuotation, id)
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = &result{id: id, total: q.TotalTTC()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totals := make(map[int64]decimal.Decimal, len(ids))
	for _, r := range results {
		if r != nil {
			totals[r.id] = r.total
		}
	}
	return totals, nil
}
