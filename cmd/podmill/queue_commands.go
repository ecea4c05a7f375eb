package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podmill/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the deferred request queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueDrainCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queued request counts per priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueStats()
				if err != nil {
					return err
				}
				rows := buildQueueDepthRows(resp.Depths)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Priority", "Depth"}, rows, []columnAlignment{alignRight, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				fmt.Fprintf(cmd.OutOrStdout(), "Total queued: %d\n", resp.Total)
				return nil
			})
		},
	}
}

func newQueueDrainCommand(ctx *commandContext) *cobra.Command {
	var drainMax int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Drain deferred requests in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDrain(drainMax)
				if err != nil {
					return err
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "User", "Endpoint", "Priority", "Queued"},
					buildQueueEntryRows(resp.Entries),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				fmt.Fprintf(cmd.OutOrStdout(), "Drained %d requests\n", len(resp.Entries))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&drainMax, "max", 0, "Maximum requests to drain (0 drains everything)")
	return cmd
}
