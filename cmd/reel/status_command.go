package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
	"reel/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var offline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show playback, storage, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, dialErr := ctx.dialClient()
			if dialErr != nil {
				cfg := ctx.configValue()
				results := preflight.RunAll(cmd.Context(), cfg, offline)
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"running": false,
						"error":   dialErr.Error(),
						"checks":  results,
					})
				}
				writeSection(stdout, "Daemon", []string{renderStatusLine("Daemon", statusError, "Not running", colorize)}, colorize)
				writeSection(stdout, "System Checks", checkLines(results, colorize), colorize)
				if cfg != nil {
					writeSection(stdout, "Dependencies", dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize), colorize)
				}
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(stdout, status, colorize)
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the archive reachability check when the daemon is down")
	return cmd
}

func renderDaemonStatus(w io.Writer, status *ipc.StatusResponse, colorize bool) {
	daemonLines := []string{
		renderStatusLine("Daemon", daemonKind(status), daemonLabel(status), colorize),
	}
	if status.SessionID != "" {
		daemonLines = append(daemonLines, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
	}
	if status.LogPath != "" {
		daemonLines = append(daemonLines, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	if status.RunError != "" {
		daemonLines = append(daemonLines, renderStatusLine("Run error", statusError, status.RunError, colorize))
	}
	writeSection(w, "Daemon", daemonLines, colorize)
	writeSection(w, "Rotation", rotationLines(status.Rotation, colorize), colorize)

	storage := storageLines(status.Storage, colorize)
	if status.StorageError != "" {
		storage = append(storage, renderStatusLine("Storage error", statusError, status.StorageError, colorize))
	}
	writeSection(w, "Storage", storage, colorize)
	if len(status.Dependencies) > 0 {
		writeSection(w, "Dependencies", dependencyLines(status.Dependencies, colorize), colorize)
	}
}

func daemonKind(status *ipc.StatusResponse) statusKind {
	if status.Running {
		return statusOK
	}
	return statusWarn
}

func daemonLabel(status *ipc.StatusResponse) string {
	if status.Running {
		return fmt.Sprintf("Running (pid %d)", status.PID)
	}
	return fmt.Sprintf("Stopped (pid %d)", status.PID)
}

func writeSection(w io.Writer, title string, lines []string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
