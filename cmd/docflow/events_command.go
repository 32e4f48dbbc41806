package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var since uint64
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent job events from the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			history, err := client.Events(cmd.Context(), since)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, history)
			}
			if len(history.Events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events")
				return nil
			}
			rows := make([][]string, 0, len(history.Events))
			for _, evt := range history.Events {
				rows = append(rows, []string{
					fmt.Sprintf("%d", evt.Sequence),
					relativeTime(evt.Timestamp),
					string(evt.Signal),
					orDash(evt.JobType),
					orDash(shortID(evt.JobID)),
					orDash(evt.EntityID),
					orDash(evt.Status),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{numCol("Seq"), col("When"), col("Signal"), col("Type"), col("Job"), col("Entity"), statusCol("Status")},
				rows, shouldColorize(cmd.OutOrStdout()), "",
			))
			fmt.Fprintf(cmd.OutOrStdout(), "next: --since %d\n", history.Next)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Only events after this sequence number")
	return cmd
}
