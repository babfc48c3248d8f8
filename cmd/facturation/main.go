package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facturation/internal/cache"
	"facturation/internal/cli"
	"facturation/internal/config"
	"facturation/internal/crm"
	apphttp "facturation/internal/http"
	"facturation/internal/log"
	"facturation/internal/observability/metrics"
	"facturation/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentApp, nil)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.ApplyLocation(cfg)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := cli.OpenBackend(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	opts := []services.Option{
		services.WithLogger(logger.WithComponent(log.ComponentBilling)),
		services.WithObserver(metrics.Billing{}),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}

	var serverOpts []apphttp.Option
	if res.Pinger != nil {
		serverOpts = append(serverOpts, apphttp.WithReadiness(res.Pinger))
	}

	sweeper := cache.NewSweeper(logger.WithComponent(log.ComponentCache).Logger)
	client, err := cli.NewCRMClient(cfg, logger)
	switch {
	case err == nil:
		opts = append(opts, services.WithQuotations(client))
		serverOpts = append(serverOpts, apphttp.WithQuotations(client))
		sweeper.Register(client.Cache())
		logger.Info("CRM client initialized", "base_url", cfg.CRMBaseURL)
	case errors.Is(err, crm.ErrNotConfigured):
		logger.Info("CRM disabled - no CRM_BASE_URL provided")
	default:
		logger.Error("Failed to initialize CRM client", log.FieldError, err)
		os.Exit(1)
	}
	sweeper.Start(ctx, time.Minute)

	svc := services.NewBillingService(res.Store, opts...)
	if _, err := svc.Load(ctx); err != nil {
		// Aggregate retries the load on the first request.
		logger.Error("Initial billing load failed", log.FieldError, err)
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		Locale:            cfg.Locale(),
		JWTSecret:         []byte(cfg.JWTSecret),
		TrustedProxies:    cfg.TrustedProxies,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	}, svc, logger, serverOpts...)
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			return
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting facturation server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.Locale(),
		"auth", cfg.JWTSecret != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		<-done
		os.Exit(1)
	}

	<-done
	cancel()
	sweeper.Wait()
	logger.Info("Server stopped gracefully")
}
