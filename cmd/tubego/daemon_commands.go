package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tubego/internal/daemonctl"
	"tubego/internal/daemonrun"
	"tubego/internal/ipc"
	"tubego/internal/registry"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tubego daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			launched, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, launchOptions(ctx, startLogLevel), 10*time.Second)
			if err != nil {
				return err
			}
			if launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
				fmt.Fprintln(stdout, "Daemon started")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon already running")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tubego daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopDaemon(ctx, cmd.OutOrStdout())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if !daemonctl.IsUnavailable(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, "not running", colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			writeStatus(stdout, status, colorize)
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the tubego daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			if err := stopDaemon(ctx, stdout); err != nil {
				return err
			}
			if _, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, launchOptions(ctx, restartLogLevel), 10*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the configured log level")

	return []*cobra.Command{startCmd, stopCmd, statusCmd, restartCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon process commands",
	}

	var logLevel string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tubego daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: strings.TrimSpace(logLevel)})
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}

func stopDaemon(ctx *commandContext, stdout io.Writer) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	result, err := daemonctl.StopAndTerminate(ctx.socketPath(), daemonrun.PIDPath(cfg), 5*time.Second)
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		fmt.Fprintln(stdout, "Daemon is not running")
		return nil
	}
	if err != nil {
		return err
	}
	if result.StopAcknowledged {
		fmt.Fprintln(stdout, "Stopping daemon...")
	} else {
		fmt.Fprintln(stdout, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
	}
	fmt.Fprintln(stdout, "Daemon stopped")
	return nil
}

func launchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketPath(),
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func writeStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	detail := fmt.Sprintf("running (pid %d)", status.PID)
	if !status.StartedAt.IsZero() {
		detail = fmt.Sprintf("running (pid %d, started %s)", status.PID, humanize.Time(status.StartedAt))
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, detail, colorize))
	fmt.Fprintln(out, renderStatusLine("Log file", statusInfo, status.LogPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Workers", statusInfo,
		fmt.Sprintf("%d busy of %d, %d queued", status.WorkersBusy, status.Workers, status.JobsQueued), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("System Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Checks) == 0 {
		fmt.Fprintln(out, renderStatusLine("Checks", statusInfo, "none run", colorize))
	}
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Delivery", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Language", statusInfo, status.Language, colorize))
	fmt.Fprintln(out, renderStatusLine("Default quality", statusInfo, status.DefaultQuality, colorize))
	secondaryKind := statusOK
	if !status.Secondary {
		secondaryKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Large-file bot", secondaryKind,
		fmt.Sprintf("configured: %s, files of %s and up", yesNo(status.Secondary), humanize.IBytes(uint64(status.ThresholdBytes))), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Tasks", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildTaskStatusRows(status.TaskStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tasks")
		return
	}
	fmt.Fprint(out, renderTable([]column{left("Status"), right("Count")}, rows))
}

func buildTaskStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range registry.AllStatuses() {
		count := stats[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{statusLabel(string(status)), fmt.Sprintf("%d", count)})
	}
	return rows
}
