package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain the content store",
	}

	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List held items in eviction order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StoreList()
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, resp.Items)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Content store is empty")
					return nil
				}
				fmt.Fprint(out, renderHeldTable(resp.Items, time.Now()))
				return nil
			})
		},
	}
	addJSONFlag(listCmd, &listJSON)

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show budget usage and free space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StoreStats()
				if err != nil {
					return err
				}
				if statsJSON {
					return writeJSON(cmd, resp.Stats)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := storageLines(resp.Stats, colorize)
				lines = append(lines,
					renderStatusLine("Content dir", statusInfo, resp.Stats.ContentDir, colorize),
					renderStatusLine("Index", statusInfo, resp.Stats.IndexPath, colorize),
				)
				writeSection(out, "Storage", lines, colorize)
				return nil
			})
		},
	}
	addJSONFlag(statsCmd, &statsJSON)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Drop index entries whose files were removed outside reel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reconcile()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Dropped) == 0 {
					fmt.Fprintln(out, "Index matches disk")
					return nil
				}
				fmt.Fprintf(out, "Dropped %d stale entr%s: %s\n", len(resp.Dropped), pluralY(len(resp.Dropped)), strings.Join(resp.Dropped, ", "))
				return nil
			})
		},
	}

	storeCmd.AddCommand(listCmd, statsCmd, reconcileCmd)
	return storeCmd
}

func renderHeldTable(items []ipc.HeldItem, now time.Time) string {
	rows := make([][]string, 0, len(items))
	var total int64
	for _, item := range items {
		total += item.ByteSize
		duration := "unknown"
		if item.DurationSeconds > 0 {
			duration = formatSeconds(item.DurationSeconds)
		}
		rows = append(rows, []string{
			item.Identifier,
			truncate(item.Title, 40),
			humanize.IBytes(uint64(max(item.ByteSize, 0))),
			duration,
			humanize.RelTime(item.DownloadedAt, now, "ago", "from now"),
			filepath.Base(item.LocalPath),
		})
	}
	return renderTable(
		[]string{"Identifier", "Title", "Size", "Duration", "Downloaded", "File"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
		fmt.Sprintf("%d items", len(items)), "", humanize.IBytes(uint64(max(total, 0))),
	)
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
