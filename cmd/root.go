package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "meikan",
	Short: "Artisan identity resolution for sword and fitting listings",
	Long:  "Matches scraped marketplace listings to canonical swordsmith and tosogu maker records, with confidence tiers and a human correction workflow.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
