package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doodhwala/billing/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or extend the billing schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := logger.WithComponent("migrate")

		// Engine start has migrated once already; migrations are idempotent.
		if err := engine.Store().Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := engine.Store().Ping(cmd.Context()); err != nil {
			return fmt.Errorf("ping after migrate: %w", err)
		}
		log.Info().Str("driver", cfg.Driver).Msg("Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
