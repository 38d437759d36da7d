package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/fault"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database schemas for the configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Catalog.Migrate(ctx); err != nil {
			// An unprovisioned catalog is a valid deployment shape.
			if !fault.IsUnavailable(err) {
				return err
			}
			zap.L().Info("catalog not configured; skipping catalog migration")
		} else {
			zap.L().Info("catalog schema up to date")
		}

		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("resolution schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
