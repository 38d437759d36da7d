package main

import (
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	searchDomain string
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the artisan catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")
		records, err := env.Lookup.Search(ctx, query, searchDomain, searchLimit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			cmd.Println("no matches")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		defer w.Flush()
		for _, rec := range records {
			rank := "-"
			if rec.Notability != nil {
				rank = strconv.Itoa(*rec.Notability)
			}
			w.Write([]byte(rec.Code + "\t" + rec.DisplayName() + "\t" + rec.NameKanji + "\t" +
				rec.Province + "\t" + rec.Era + "\t" + string(rec.Domain) + "\t" + rank + "\n"))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchDomain, "domain", "all", "filter: smith, tosogu, or all")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (1-50)")
	rootCmd.AddCommand(searchCmd)
}
