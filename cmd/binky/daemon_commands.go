package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"binky/internal/daemonctl"
	"binky/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the binky daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
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
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon started")
				}
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the daemon log level (debug, info, warn, error)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the binky daemon (completely terminates the process)",
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

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, model, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			status := snapshot.Status

			printSection := func(title string, lines []string) {
				for _, line := range renderSectionHeader(title, colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range lines {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)
			}

			systemLines := renderStatusLines(snapshot.SystemChecks, colorize)
			if status.Running {
				systemLines = append(systemLines,
					renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize),
					renderStatusLine("Language", statusInfo, status.Language, colorize),
				)
			}
			printSection("System Status", systemLines)
			printSection("Models", modelLines(status.Models, snapshot.ModelSummary, cfg.Diarization.Enabled, colorize))
			printSection("Paths", renderStatusLines(snapshot.PathChecks, colorize))

			if status.Running {
				for _, line := range renderSectionHeader("Queues", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"Stage", "Active", "Queued", "Processing"},
					queueRows(status.Transcription, status.Diarization),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Episodes", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildCountRows(status.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No episodes registered")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Stage", "Status", "Count"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			fmt.Fprintln(stdout)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the binky daemon",
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
				daemonLaunchOptions(ctx, restartLogLevel),
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
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the daemon log level (debug, info, warn, error)")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

// buildCountRows turns "stage.status" counters into sorted table rows.
func buildCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key, count := range counts {
		if count > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		stage, status, ok := strings.Cut(key, ".")
		if !ok {
			stage, status = key, ""
		}
		rows = append(rows, []string{stage, status, strconv.Itoa(counts[key])})
	}
	return rows
}

func queueRows(transcription, diarization ipc.QueueStatus) [][]string {
	row := func(stage string, status ipc.QueueStatus) []string {
		active := "-"
		if status.HasActive() {
			active = strconv.FormatInt(status.ActiveEpisodeID, 10)
		}
		return []string{stage, active, strconv.Itoa(status.QueueLength), yesNo(status.IsProcessing)}
	}
	return [][]string{
		row("transcription", transcription),
		row("diarization", diarization),
	}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
