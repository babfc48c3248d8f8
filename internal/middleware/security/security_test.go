package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"facturation/internal/log"
)

func TestClientIP(t *testing.T) {
	r, err := NewResolver(DefaultTrustedProxies)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct untrusted ignores headers", "203.0.113.7:5000", "1.2.3.4", "", "203.0.113.7"},
		{"trusted proxy uses forwarded", "10.0.0.2:80", "198.51.100.1", "", "198.51.100.1"},
		{"skips trusted hops", "10.0.0.2:80", "198.51.100.1, 10.0.0.9", "", "198.51.100.1"},
		{"rightmost untrusted wins", "10.0.0.2:80", "6.6.6.6, 198.51.100.1", "", "198.51.100.1"},
		{"real ip fallback", "127.0.0.1:80", "", "198.51.100.5", "198.51.100.5"},
		{"garbage forwarded", "127.0.0.1:80", "nope", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := r.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewResolverRejectsBadCIDR(t *testing.T) {
	if _, err := NewResolver([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS expected over TLS")
	}
}

func TestDetector(t *testing.T) {
	d := NewDetector(log.Discard(), nil)

	probe := httptest.NewRequest(http.MethodGet, "/.env", nil)
	if !d.Suspicious(probe) {
		t.Error("/.env should be flagged")
	}
	normal := httptest.NewRequest(http.MethodGet, "/api/billing/months?q=atelier", nil)
	if d.Suspicious(normal) {
		t.Error("normal request flagged")
	}

	called := false
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), probe)
	if !called || d.Flagged() != 1 {
		t.Fatalf("called=%v flagged=%d", called, d.Flagged())
	}
}
