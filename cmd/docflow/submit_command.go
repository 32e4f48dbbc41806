package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/daemonrun"
	"docflow/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		input     string
		inputFile string
		priority  int
	)
	cmd := &cobra.Command{
		Use:   "submit <type>",
		Short: "Enqueue a job",
		Long:  "Validate the JSON input against the job type and enqueue a waiting job.\nUse --input-file - to read the input from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(input, inputFile)
			if err != nil {
				return err
			}
			var opts []jobs.SubmitOption
			if cmd.Flags().Changed("priority") {
				opts = append(opts, jobs.WithPriority(priority))
			}
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				job, err := app.Jobs.SubmitRaw(c, args[0], json.RawMessage(raw), opts...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromJob(job))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s", job.Type, job.ID)
				if job.EntityID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " for %s", job.EntityID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), " on the %s lane\n", job.Device)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Job input as a JSON document")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "Read job input from a file (- for stdin)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Override the job type's priority")
	return cmd
}
