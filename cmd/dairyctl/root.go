package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodhwala/billing"
	audithook "github.com/doodhwala/billing/audit_hook"
	"github.com/doodhwala/billing/document"
	"github.com/doodhwala/billing/internal/config"
	"github.com/doodhwala/billing/internal/logger"
	"github.com/doodhwala/billing/pricing"
)

var version = "0.1.0"

var (
	cfg    *config.Config
	cfgErr error
	engine *billing.Engine
)

var rootCmd = &cobra.Command{
	Use:   "dairyctl",
	Short: "dairyctl - recurring billing for doorstep dairy deliveries",
	Long: `dairyctl drives the billing engine from the command line: it schedules
daily deliveries, runs the monthly invoice cycle, records payments and
audits customer ledgers.

Storage is selected with BILLING_DRIVER (memory, postgres, mysql) and
BILLING_DATABASE_URL. The memory driver keeps nothing between runs and
is only useful together with "serve".`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: openEngine,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeEngine()
	},
}

// Execute runs the root command. loadErr is the configuration error, if
// any, from startup; commands refuse to run with a broken config.
func Execute(c *config.Config, loadErr error) {
	cfg, cfgErr = c, loadErr
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func openEngine(cmd *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	opts := []billing.Option{
		billing.WithLogger(logger.Slog(logger.WithComponent("engine"))),
		billing.WithPlugin(document.JSON{}),
		billing.WithPlugin(document.Text{}),
		billing.WithPlugin(audithook.New(auditLog(),
			audithook.WithLogger(logger.Slog(logger.WithComponent("audit"))),
		)),
		billing.WithCurrency(cfg.Currency),
		billing.WithDueDays(cfg.DueDays),
		billing.WithConcurrency(cfg.Concurrency),
	}
	if cfg.HasDefaultRule() {
		opts = append(opts, billing.WithBillingRule(pricing.Rule{
			TaxBasisPoints:      cfg.TaxBasisPoints,
			DiscountBasisPoints: cfg.DiscountBasisPoints,
		}))
	}
	engine = billing.New(s, opts...)
	return engine.Start(cmd.Context())
}

// auditLog writes audit events to the process log.
func auditLog() audithook.RecorderFunc {
	log := logger.WithComponent("audit")
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		log.Info().
			Str("action", evt.Action).
			Str("resource", evt.Resource).
			Str("resource_id", evt.ResourceID).
			Str("outcome", evt.Outcome).
			Interface("metadata", evt.Metadata).
			Msg("Audit")
		return nil
	}
}

func closeEngine() error {
	if engine == nil {
		return nil
	}
	return engine.Stop()
}
