package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/daemon"
	"docflow/internal/daemonrun"
	"docflow/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsAbortCommand(ctx))
	jobsCmd.AddCommand(newJobsPurgeCommand(ctx))
	jobsCmd.AddCommand(newJobsResetCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		jobType  string
		parent   string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Type: jobType, ParentID: parent, Limit: limit}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				list, err := app.Jobs.List(c, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.JobListResponse{Jobs: api.FromJobs(list)})
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						shortID(job.ID),
						job.Type,
						string(job.Status),
						string(job.Device),
						strconv.Itoa(job.Attempts),
						orDash(job.EntityID),
						relativeTime(job.UpdatedAt),
						orDash(truncate(job.StatusMessage, 48)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]column{col("ID"), col("Type"), statusCol("Status"), col("Device"), numCol("Tries"), col("Entity"), col("Updated"), col("Message")},
					rows, colorize, fmt.Sprintf("%d job(s)", len(list)),
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&jobType, "type", "t", "", "Filter by job type")
	cmd.Flags().StringVar(&parent, "parent", "", "Only jobs spawned by this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows (0 for all)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its input and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				job, err := app.Jobs.Get(c, args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromJob(job))
				}
				renderJob(cmd, job)
				children, err := app.Store.Children(c, job.ID)
				if err != nil {
					return err
				}
				if len(children) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\nSpawned %d job(s):\n", len(children))
					for _, child := range children {
						index := "-"
						if child.BranchIndex != nil {
							index = strconv.Itoa(*child.BranchIndex)
						}
						fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s %s %s\n", index, child.ID, child.Type, child.Status)
					}
				}
				return nil
			})
		},
	}
}

func renderJob(cmd *cobra.Command, job *queue.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	parent := "-"
	if job.ParentID != "" {
		parent = job.ParentID
		if job.BranchIndex != nil {
			parent += fmt.Sprintf(" (item %d)", *job.BranchIndex)
		}
	}
	expires := "never"
	if at := job.ExpiresAt(); at != nil {
		expires = relativeTime(*at)
	}
	printKV(out, [][2]string{
		{"ID", job.ID},
		{"Type", job.Type},
		{"Status", colorStatus(job.Status, colorize)},
		{"Message", orDash(job.StatusMessage)},
		{"Device", string(job.Device)},
		{"Priority", strconv.Itoa(job.Priority)},
		{"Attempts", fmt.Sprintf("%d of %d", job.Attempts, job.MaxRetries+1)},
		{"Timeout", durationOrDash(job.Timeout)},
		{"Entity", orDash(job.EntityID)},
		{"Parent", parent},
		{"Abort requested", yesNo(job.AbortRequested)},
		{"Created", relativeTime(job.CreatedAt)},
		{"Started", relativeTimePtr(job.StartedAt)},
		{"Finished", relativeTimePtr(job.FinishedAt)},
		{"Expires", expires},
	})
	fmt.Fprintf(out, "\nInput:\n%s\n", prettyJSON(job.Input))
	if len(job.Output) > 0 {
		fmt.Fprintf(out, "\nOutput:\n%s\n", prettyJSON(job.Output))
	}
}

func newJobsAbortCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <id>",
		Short: "Abort a waiting or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				job, err := app.Jobs.Abort(c, args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromJob(job))
				}
				if job.Status == queue.StatusAborted {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s aborted\n", job.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Abort requested for running job %s\n", job.ID)
				}
				return nil
			})
		},
	}
}

func newJobsPurgeCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired job results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				var (
					removed int64
					err     error
				)
				if all {
					removed, err = app.Store.PurgeTerminal(c)
				} else {
					removed, err = app.Store.PurgeExpired(c, time.Now())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every finished, failed, or aborted job")
	return cmd
}

func newJobsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Requeue jobs left running by a crashed daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			held, err := daemon.LockHeld(cfg)
			if err != nil {
				return err
			}
			if held {
				return fmt.Errorf("daemon is running; it requeues interrupted jobs on its own")
			}
			return ctx.withApp(cmd, func(c context.Context, app *daemonrun.App) error {
				reset, err := app.Store.ResetRunning(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", reset)
				return nil
			})
		},
	}
}
