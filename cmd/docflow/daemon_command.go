package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/daemon"
	"docflow/internal/daemonrun"
	"docflow/internal/preflight"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the docflow daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, lane, and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var status api.DaemonStatus
			reachable := false
			if client, err := ctx.apiClient(); err == nil {
				if status, err = client.Status(cmd.Context()); err == nil {
					reachable = true
				}
			}
			if !reachable {
				held, err := daemon.LockHeld(cfg)
				if err != nil {
					return err
				}
				status = api.DaemonStatus{
					Running:      held,
					DatabasePath: cfg.DatabasePath(),
					LockFilePath: cfg.LockPath(),
					Preflight:    preflight.RunAll(cmd.Context(), cfg),
				}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(out, status, reachable, colorize)
			return nil
		},
	}
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, reachable, colorize bool) {
	state := "stopped"
	switch {
	case status.Running && reachable:
		state = fmt.Sprintf("running (pid %d, api %s)", status.PID, status.APIAddress)
	case status.Running:
		state = "running (api unreachable)"
	}
	printKV(out, [][2]string{
		{"Daemon", paint(state, status.Running, colorize)},
		{"Database", status.DatabasePath},
		{"Lock file", status.LockFilePath},
	})

	if reachable {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(status.Workers.Lanes))
		for _, lane := range status.Workers.Lanes {
			rows = append(rows, []string{
				string(lane.Device),
				fmt.Sprintf("%d", lane.Workers),
				fmt.Sprintf("%d", lane.Waiting),
				fmt.Sprintf("%d", lane.Running),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]column{col("Lane"), numCol("Workers"), numCol("Waiting"), numCol("Running")},
			rows, colorize, ""))
		h := status.Workers.Health
		fmt.Fprintf(out, "Jobs: %d total, %d finished, %d failed, %d aborted\n", h.Total, h.Finished, h.Failed, h.Aborted)
		if status.Workers.LastError != "" {
			fmt.Fprintf(out, "Last error: %s\n", status.Workers.LastError)
		}
	}

	if len(status.Preflight) > 0 {
		fmt.Fprintln(out, "\nPreflight:")
		for _, r := range status.Preflight {
			mark := "OK"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(out, "  %-18s %s %s\n", r.Name+":", paint("["+mark+"]", r.Passed, colorize), strings.TrimSpace(r.Detail))
		}
	}
}

func paint(value string, ok, colorize bool) string {
	if !colorize {
		return value
	}
	if ok {
		return ansiGreen + value + ansiReset
	}
	return ansiRed + value + ansiReset
}
