package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/daemonrun"
	"docflow/internal/queue"
	"docflow/internal/tracker"
)

func newTrackerCommand(ctx *commandContext) *cobra.Command {
	trackerCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Read per-entity job status rows",
	}
	trackerCmd.AddCommand(&cobra.Command{
		Use:   "show <job_type> <entity_id>...",
		Short: "Show status rows for entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, entities := args[0], args[1:]
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				var records []tracker.Record
				rows := make([][]string, 0, len(entities))
				colorize := shouldColorize(cmd.OutOrStdout())
				for _, entity := range entities {
					rec, err := app.Tracker.Get(c, entity, jobType)
					if errors.Is(err, tracker.ErrNotFound) {
						rows = append(rows, []string{entity, "never run", "-", "-"})
						continue
					}
					if err != nil {
						return err
					}
					records = append(records, rec)
					rows = append(rows, []string{entity, string(rec.Status), relativeTime(rec.Timestamp), orDash(truncate(rec.Message, 60))})
				}
				progress, err := app.Tracker.Progress(c, jobType, entities)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, struct {
						Records  []tracker.Record `json:"records"`
						Progress tracker.Progress `json:"progress"`
					}{records, progress})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]column{col("Entity"), statusCol("Status"), col("Updated"), col("Message")},
					rows, colorize, "",
				))
				if len(entities) > 1 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", jobType, progress)
					if failed := progress.Counts[queue.StatusError]; failed > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), ", %d failed", failed)
					}
					fmt.Fprintln(cmd.OutOrStdout())
				}
				return nil
			})
		},
	})
	return trackerCmd
}
