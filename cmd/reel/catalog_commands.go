package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reel/internal/catalog"
	"reel/internal/logging"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the metadata library without the daemon",
	}

	var limit int
	var asJSON bool
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Show candidates the prefetcher could pick",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lib, err := catalog.OpenLibrary(cfg.Catalog.DBPath, cfg.Catalog.MediaType)
			if err != nil {
				return err
			}
			defer lib.Close()

			client := catalog.NewClient(lib, nil, cfg.Catalog.RankingSeed, logging.NewNop())
			items, err := client.FindCandidates(cmd.Context(), nil, limit, cfg.Storage.MaxItemSizeBytes+1)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintf(out, "No %s items fit within %s\n", cfg.Catalog.MediaType, humanize.IBytes(uint64(max(cfg.Storage.MaxItemSizeBytes, 0))))
				return nil
			}
			fmt.Fprint(out, renderCandidateTable(items))
			return nil
		},
	}
	sampleCmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of candidates to show")
	addJSONFlag(sampleCmd, &asJSON)

	catalogCmd.AddCommand(sampleCmd)
	return catalogCmd
}

func renderCandidateTable(items []catalog.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		rows = append(rows, []string{
			item.Identifier,
			truncate(item.Title, 40),
			year,
			humanize.IBytes(uint64(max(item.ByteSize, 0))),
			humanize.Comma(item.Downloads),
		})
	}
	return renderTable(
		[]string{"Identifier", "Title", "Year", "Size", "Downloads"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}
