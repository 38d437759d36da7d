package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/touken-lab/meikan/internal/fault"
)

var (
	resolveForce   bool
	resolveListing int64
	resolveLimit   int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run automated resolution over unresolved listings",
	Long:  "Retrieves candidates and classifies confidence for listings without a resolution. With --listing, re-resolves one listing; --force clears a prior human verification as an explicit re-resolution.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if resolveListing > 0 {
			return resolveOne(cmd, env, resolveListing)
		}

		limit := resolveLimit
		if limit <= 0 {
			limit = cfg.Batch.ChunkSize
		}
		listings, err := env.Store.ListUnresolved(ctx, limit)
		if err != nil {
			return err
		}
		if len(listings) == 0 {
			zap.L().Info("no unresolved listings")
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrent)

		var resolved, skipped int64
		results := make(chan string, len(listings))
		for _, l := range listings {
			g.Go(func() error {
				res, err := env.Service.Resolve(gctx, l.ID, l.Text(), l.Domain, resolveForce)
				if err != nil {
					// Degenerate text is a data problem, not a batch failure.
					if fault.IsInvalidInput(err) {
						zap.L().Warn("skipping listing with unusable text",
							zap.Int64("listing_id", l.ID), zap.Error(err))
						results <- "skipped"
						return nil
					}
					return err
				}
				zap.L().Debug("resolved",
					zap.Int64("listing_id", l.ID),
					zap.String("confidence", string(res.Confidence)),
				)
				results <- "resolved"
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		close(results)
		for r := range results {
			if r == "resolved" {
				resolved++
			} else {
				skipped++
			}
		}

		zap.L().Info("batch resolution complete",
			zap.Int64("resolved", resolved),
			zap.Int64("skipped", skipped),
		)
		return nil
	},
}

func resolveOne(cmd *cobra.Command, env *env, id int64) error {
	ctx := cmd.Context()
	listing, err := env.Store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if listing == nil {
		return fault.NotFound("listing %d not found", id)
	}

	res, err := env.Service.Resolve(ctx, id, listing.Text(), listing.Domain, resolveForce)
	if err != nil {
		return err
	}

	code := "(none)"
	if res.ArtisanCode != nil {
		code = *res.ArtisanCode
	}
	cmd.Printf("listing %d: %s  confidence=%s  state=%s  candidates=%d\n",
		id, code, res.Confidence, res.State(), len(res.Candidates))
	return nil
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveForce, "force", false, "re-resolve even if a human has verified or corrected the listing")
	resolveCmd.Flags().Int64Var(&resolveListing, "listing", 0, "resolve a single listing by id")
	resolveCmd.Flags().IntVar(&resolveLimit, "limit", 0, "max listings per batch (default from config)")
	rootCmd.AddCommand(resolveCmd)
}
