package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/touken-lab/meikan/internal/model"
)

// seedFile is the curated catalog document: a flat list of artisan records.
type seedFile struct {
	Artisans []model.ArtisanRecord `yaml:"artisans"`
}

var importCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Load or refresh the artisan catalog from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read seed file %s", args[0])
		}

		var seed seedFile
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrapf(err, "parse seed file %s", args[0])
		}
		if len(seed.Artisans) == 0 {
			return eris.Errorf("seed file %s contains no artisans", args[0])
		}

		for i, rec := range seed.Artisans {
			if rec.Code == "" {
				return eris.Errorf("seed record %d has no code", i)
			}
			if rec.Code == model.UnknownArtisanCode {
				return eris.Errorf("seed record %d uses the reserved code %q", i, model.UnknownArtisanCode)
			}
			if rec.Domain == "" {
				seed.Artisans[i].Domain = model.DomainSword
			}
		}

		if err := env.Catalog.Migrate(ctx); err != nil {
			return err
		}

		n, err := env.Catalog.Upsert(ctx, seed.Artisans)
		if err != nil {
			return err
		}

		total, err := env.Catalog.Count(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("catalog import complete",
			zap.Int64("upserted", n),
			zap.Int("catalog_size", total),
		)
		cmd.Printf("imported %d records (catalog now %d)\n", n, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
