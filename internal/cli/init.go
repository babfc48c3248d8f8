package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"

	"facturation/internal/backend"
	"facturation/internal/config"
	"facturation/internal/core"
	"facturation/internal/crm"
	"facturation/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ApplyLocation(cfg)
	return cfg, nil
}

// ApplyLocation makes the billing time zone the one timestamp dates are
// decoded in.
func ApplyLocation(cfg *config.Config) {
	core.SetTimestampLocation(cfg.Location())
}

// SetupLogger builds the process logger at the configured level and makes
// it the slog default. A nil out writes to stdout.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Component: component, Output: out})
	log.SetDefault(logger)
	return logger
}

// OpenBackend creates the configured document store. The AMQP publisher
// is only attached when publish is set.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger, publish bool) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !publish {
		bc.AMQPURL = ""
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", bc.Type, err)
	}
	return res, nil
}

// NewCRMClient returns the CRM client, or crm.ErrNotConfigured when no
// base URL is set.
func NewCRMClient(cfg *config.Config, logger *log.Logger) (*crm.Client, error) {
	return crm.New(crm.Config{
		BaseURL: cfg.CRMBaseURL,
		Token:   cfg.CRMAPIToken,
		Timeout: cfg.CRMTimeout,
		Logger:  logger,
	})
}
