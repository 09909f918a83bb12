package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tubego/internal/ipc"
)

const followInterval = 500 * time.Millisecond

func buildTaskRows(tasks []ipc.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		status := statusLabel(task.Status)
		if task.Uploading {
			status += " (uploading)"
		}
		quality := task.Quality
		if quality == "" {
			quality = "-"
		}
		rows = append(rows, []string{task.ID, status, task.Progress, quality, displayTitle(task)})
	}
	return rows
}

func writeTaskDetail(out io.Writer, task ipc.Task, colorize bool) {
	for _, line := range renderSectionHeader("Task "+task.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", taskStatusKind(task), statusLabel(task.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Title", statusInfo, displayTitle(task), colorize))
	fmt.Fprintln(out, renderStatusLine("Source", statusInfo, task.Source, colorize))
	if task.Quality != "" {
		fmt.Fprintln(out, renderStatusLine("Quality", statusInfo, task.Quality, colorize))
	}
	progress := task.Progress
	if task.Phase != "" {
		progress = fmt.Sprintf("%s (%s)", task.Progress, task.Phase)
	}
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, colorize))
	if task.ArtifactPath != "" {
		fmt.Fprintln(out, renderStatusLine("File", statusInfo, task.ArtifactPath, colorize))
	}
	if task.Uploading {
		fmt.Fprintln(out, renderStatusLine("Upload", statusInfo, "in progress", colorize))
	}
	if task.CancelRequested {
		fmt.Fprintln(out, renderStatusLine("Cancel", statusWarn, "requested", colorize))
	}
	if task.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, task.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, humanize.Time(task.UpdatedAt), colorize))
	actions := "none"
	if len(task.Actions) > 0 {
		actions = strings.Join(task.Actions, ", ")
	}
	fmt.Fprintln(out, renderStatusLine("Actions", statusInfo, actions, colorize))
}

// followTask polls a task until it settles, drawing a progress bar on stderr.
func followTask(cmd *cobra.Command, client *ipc.Client, id string) (*ipc.Task, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	bar := progressbar.NewOptions(1000,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(id),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		task, err := client.Show(id)
		if err != nil {
			_ = bar.Exit()
			return nil, err
		}
		bar.Describe(fmt.Sprintf("%s %s", id, statusLabel(task.Status)))
		_ = bar.Set(int(progressPercent(task.Progress) * 10))
		if task.Settled() {
			_ = bar.Finish()
			return task, nil
		}
		select {
		case <-ctx.Done():
			_ = bar.Exit()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// progressPercent parses the "37.5%" form tasks report; anything else is 0.
func progressPercent(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
	if err != nil || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
