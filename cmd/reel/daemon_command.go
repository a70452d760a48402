package main

import (
	"github.com/spf13/cobra"

	"reel/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var skipNetwork bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the reel daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if socket := ctx.socketPath(); socket != "" {
				cfg.Paths.APISocket = socket
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:          logLevel,
				Development:       development,
				SkipNetworkChecks: skipNetwork,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	cmd.Flags().BoolVar(&skipNetwork, "skip-network-checks", false, "Skip the archive reachability check at startup")
	return cmd
}
