package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facturation/internal/amqp"
	"facturation/internal/cli"
	"facturation/internal/config"
	"facturation/internal/log"
	"facturation/internal/observability/metrics"
	"facturation/internal/services"
	"facturation/internal/sheets"
	gsheet "facturation/internal/sheets/google"
	mem "facturation/internal/sheets/memory"
	"facturation/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentWorker, nil)

	logger.Info("Starting facturation-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}
	cli.ApplyLocation(cfg)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker only reads plans; it never publishes.
	res, err := cli.OpenBackend(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Close()

	svc := services.NewBillingService(res.Store,
		services.WithLogger(logger.WithComponent(log.ComponentBilling)),
		services.WithObserver(metrics.Billing{}),
	)

	// Google Sheets mirror is optional; without it rows are kept in memory
	// so the sync path still runs and logs.
	var writer sheets.RowWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	syncWorker := worker.NewSyncWorker(svc, writer, worker.Config{
		SheetBaseName: cfg.GoogleSheetName,
		Locale:        cfg.Locale(),
	}, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// On startup, mirror everything in case messages were missed
	logger.Info("Performing startup resync...")
	if err := syncWorker.FullResync(ctx, worker.TriggerStartup); err != nil {
		logger.Error("Startup resync failed", log.FieldError, err)
		// Don't exit - continue with normal operation
	}

	scheduler, err := syncWorker.Schedule(cfg.SyncSchedule)
	if err != nil {
		logger.Error("Failed to schedule resync", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Scheduled full resync", "schedule", cfg.SyncSchedule)

	go func() {
		if err := amqpClient.ConsumePlanChanged(ctx, syncWorker.HandlePlanChanged); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err, "addr", cfg.MetricsAddr)
			}
		}()
		logger.Info("Serving worker metrics", "addr", cfg.MetricsAddr)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	// Stop waits for a running resync to finish.
	select {
	case <-scheduler.Stop().Done():
		logger.Info("Worker shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	}
}
