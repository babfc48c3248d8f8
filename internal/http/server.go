// Package http serves the billing JSON API and the export downloads.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"facturation/internal/auth"
	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/crm"
	"facturation/internal/log"
	"facturation/internal/middleware/ratelimit"
	"facturation/internal/middleware/security"
	"facturation/internal/middleware/trace"
	"facturation/internal/observability/metrics"
	"facturation/internal/services"
	"facturation/internal/store"
)

// Billing is the service surface the handlers use.
type Billing interface {
	Aggregate(ctx context.Context) (*billing.Aggregate, error)
	Month(ctx context.Context, key core.MonthKey, q billing.Query) (services.MonthView, error)
	Plan(ctx context.Context, docID string) (core.BillingPlan, error)
	SavePlan(ctx context.Context, plan core.BillingPlan) (core.BillingPlan, error)
	ToggleInvoiced(ctx context.Context, docID string, stepIndex int) (*billing.Aggregate, error)
	Export(ctx context.Context, f billing.Filter, l core.Locale) ([]billing.Row, error)
	Reconciliation(ctx context.Context) ([]billing.PlanSummary, error)
}

// QuotationSearcher backs the quotation picker.
type QuotationSearcher interface {
	SearchQuotations(ctx context.Context, term string) ([]crm.Quotation, error)
}

type Config struct {
	Addr           string
	Locale         core.Locale
	JWTSecret      []byte
	TrustedProxies []string
	// RequestsPerMinute per client; zero uses the limiter default.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	billing    Billing
	quotations QuotationSearcher
	ready      store.Pinger
	locale     core.Locale
	logger     *log.Logger
	limiter    *ratelimit.Limiter
	stop       context.CancelFunc
}

type Option func(*Server)

// WithQuotations enables the quotation search endpoint.
func WithQuotations(q QuotationSearcher) Option { return func(s *Server) { s.quotations = q } }

// WithReadiness makes /readyz ping p.
func WithReadiness(p store.Pinger) Option { return func(s *Server) { s.ready = p } }

func NewServer(cfg Config, svc Billing, logger *log.Logger, opts ...Option) (*Server, error) {
	proxies := cfg.TrustedProxies
	if proxies == nil {
		proxies = security.DefaultTrustedProxies
	}
	resolver, err := security.NewResolver(proxies)
	if err != nil {
		return nil, err
	}
	if !cfg.Locale.IsValid() {
		cfg.Locale = core.LocaleFR
	}

	s := &Server{
		billing: svc,
		locale:  cfg.Locale,
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.limiter.Run(ctx, 5*time.Minute)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(resolver, cfg.JWTSecret),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(resolver *security.Resolver, secret []byte) http.Handler {
	tracer := trace.NewMiddleware(s.logger, resolver.ClientIP, metrics.ObserveHTTP)
	detector := security.NewDetector(s.logger, resolver.ClientIP)
	authn := auth.NewMiddleware(secret, s.logger, func(w http.ResponseWriter, r *http.Request, err error) {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
	})

	r := chi.NewRouter()
	r.Use(tracer.Handler)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(detector.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(resolver.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
		}))
		r.Use(authn.Wrap)

		r.Route("/api/billing", func(r chi.Router) {
			r.Get("/months", s.handleMonths)
			r.Get("/years", s.handleYears)
			r.Get("/months/{year}/{month}", s.handleMonth)
			r.Get("/plans/{docID}", s.handleGetPlan)
			r.Put("/plans/{docID}", s.handlePutPlan)
			r.Post("/plans/{docID}/steps/{index}/toggle", s.handleToggle)
			r.Get("/export.xlsx", s.handleExportXLSX)
			r.Get("/export.pdf", s.handleExportPDF)
			r.Get("/reconciliation", s.handleReconciliation)
		})
		r.Get("/api/quotations/search", s.handleQuotationSearch)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Shutdown stops background work and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
