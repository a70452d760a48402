package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newRotationCommands(ctx *commandContext) []*cobra.Command {
	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Promote the up-next item on the next monitor cycle",
		Long: "Signal end of media or skip the current item. The swap happens once\n" +
			"the up-next item is ready; until then the request stays pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Swap()
				if err != nil {
					return err
				}
				if !resp.Accepted {
					return fmt.Errorf("swap refused: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Swap requested")
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume rotation after repeated swap failures halted it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				if !resp.Resumed {
					return fmt.Errorf("resume refused: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rotation resumed")
				return nil
			})
		},
	}

	reclaimCmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Evict retained items until the held total fits the budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reclaim()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Evicted) == 0 {
					fmt.Fprintln(out, "Nothing to reclaim")
					return nil
				}
				fmt.Fprintf(out, "Evicted %d item(s): %s\n", len(resp.Evicted), strings.Join(resp.Evicted, ", "))
				return nil
			})
		},
	}

	evictCmd := &cobra.Command{
		Use:   "evict <identifier>",
		Short: "Remove one retained item from the content store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Evict(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Evicted %s\n", args[0])
				return nil
			})
		},
	}

	return []*cobra.Command{swapCmd, resumeCmd, reclaimCmd, evictCmd}
}
