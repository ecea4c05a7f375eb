package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podmill/internal/daemonctl"
	"podmill/internal/daemonrun"
	"podmill/internal/ipc"
	"podmill/internal/jobs"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startDetach bool
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the podmill daemon",
		Long:  "Start the podmill daemon in the foreground. Pass --detach to launch it as a background process instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if startDetach {
				exe, err := daemonExecutable()
				if err != nil {
					return err
				}

				result, err := daemonctl.EnsureStarted(
					ctx.socketPath(),
					exe,
					daemonLaunchOptions(ctx),
					10*time.Second,
				)
				if err != nil {
					return err
				}

				if result.Launched {
					fmt.Fprintln(stdout, "Daemon not running, launching...")
				}

				switch result.State {
				case daemonctl.StartStateStarted:
					fmt.Fprintln(stdout, "Daemon started")
				case daemonctl.StartStateAlreadyRunning:
					if strings.TrimSpace(result.Message) != "" {
						fmt.Fprintln(stdout, result.Message)
						return nil
					}
					fmt.Fprintln(stdout, "Daemon already running")
				case daemonctl.StartStateRequested:
					if strings.TrimSpace(result.Message) != "" {
						fmt.Fprintln(stdout, result.Message)
						return nil
					}
					fmt.Fprintln(stdout, "Start request sent")
				}
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: startLogLevel})
		},
	}
	startCmd.Flags().BoolVarP(&startDetach, "detach", "d", false, "Launch the daemon as a background process")
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level for this run")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the podmill daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the podmill daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}

			socket := ctx.socketPath()
			client, dialErr := ipc.Dial(socket)
			if dialErr != nil {
				if daemonUnreachable(dialErr) {
					fmt.Fprintln(stdout, renderStatusLine("Running", statusError, "no (start the daemon with `podmill start`)", colorize))
					return nil
				}
				return wrapDialError(dialErr, socket)
			}
			defer client.Close()

			resp, err := client.Status()
			if err != nil {
				return err
			}
			status := resp.Status

			if status.Running {
				fmt.Fprintln(stdout, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d", status.PID), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Running", statusWarn, "shutting down", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Bind", statusInfo, status.Bind, colorize))
			if status.UptimeSeconds > 0 {
				uptime := (time.Duration(status.UptimeSeconds) * time.Second).String()
				fmt.Fprintln(stdout, renderStatusLine("Uptime", statusInfo, uptime, colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Rate limits", statusInfo, status.Modes.Limits, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Documents", statusInfo, status.Modes.Documents, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Transcriber", statusInfo, status.Modes.Transcriber, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Generator", statusInfo, status.Modes.Generator, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Runner", statusInfo, status.Modes.Runner, colorize))
			notifyKind := statusInfo
			if status.Modes.Notify == "off" {
				notifyKind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Notifications", notifyKind, status.Modes.Notify, colorize))
			if status.ArchivePath != "" {
				fmt.Fprintln(stdout, renderStatusLine("Job archive", statusInfo, status.ArchivePath, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			jobRows := buildJobStatsRows(status.Jobs)
			if len(jobRows) == 0 {
				fmt.Fprintln(stdout, "No jobs tracked")
			} else {
				fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, jobRows, []columnAlignment{alignLeft, alignRight}))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Deferred Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			queueRows := buildQueueDepthRows(status.QueueDepths)
			if len(queueRows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"Priority", "Depth"}, queueRows, []columnAlignment{alignRight, alignRight}))
			fmt.Fprintf(stdout, "Total queued: %d\n", status.QueueTotal)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func buildJobStatsRows(stats jobs.Stats) [][]string {
	entries := []struct {
		label string
		count int
	}{
		{"queued", stats.Queued},
		{"processing", stats.Processing},
		{"completed", stats.Completed},
		{"failed", stats.Failed},
		{"cancelled", stats.Cancelled},
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{entry.label, strconv.Itoa(entry.count)})
	}
	return rows
}

func buildQueueDepthRows(depths map[int]int64) [][]string {
	priorities := make([]int, 0, len(depths))
	for priority, depth := range depths {
		if depth <= 0 {
			continue
		}
		priorities = append(priorities, priority)
	}
	sort.Ints(priorities)
	rows := make([][]string, 0, len(priorities))
	for _, priority := range priorities {
		rows = append(rows, []string{strconv.Itoa(priority), strconv.FormatInt(depths[priority], 10)})
	}
	return rows
}

func daemonUnreachable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
