package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"facturation/internal/cli"
	"facturation/internal/log"
	"facturation/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays clean for JSON and exports.
	logger := cli.SetupLogger(cfg, log.ComponentApp, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := cli.OpenBackend(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer res.Close()

	opts := []services.Option{services.WithLogger(logger.WithComponent(log.ComponentBilling))}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	if client, err := cli.NewCRMClient(cfg, logger); err == nil {
		opts = append(opts, services.WithQuotations(client))
	}

	// Detect interactive terminal: tables for people, JSON for pipes.
	isTerminal := func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	app := &cli.App{
		Billing:    services.NewBillingService(res.Store, opts...),
		Locale:     cfg.Locale(),
		JWTSecret:  []byte(cfg.JWTSecret),
		IsTerminal: isTerminal,
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
