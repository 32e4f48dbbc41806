package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/daemonrun"
)

func newTypesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered job types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(_ context.Context, app *daemonrun.App) error {
				descs := app.Registry.Types()
				if ctx.jsonOutput() {
					out := make([]api.JobType, 0, len(descs))
					for _, desc := range descs {
						out = append(out, api.FromDescriptor(desc))
					}
					return writeJSON(cmd, api.TypesResponse{Types: out})
				}
				rows := make([][]string, 0, len(descs))
				for _, desc := range descs {
					opts := desc.Options
					rows = append(rows, []string{
						desc.Type,
						string(opts.Device),
						strconv.Itoa(opts.Priority),
						durationOrDash(opts.Timeout),
						strconv.Itoa(opts.Retry.MaxRetries),
						yesNo(opts.Router),
						opts.Description,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]column{col("Type"), col("Device"), numCol("Priority"), numCol("Timeout"), numCol("Retries"), col("HTTP"), col("Description")},
					rows, false, "",
				))
				return nil
			})
		},
	}
}
