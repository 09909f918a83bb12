package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tubego/internal/ipc"
	"tubego/internal/registry"
	"tubego/internal/services"
	"tubego/internal/textutil"
)

func newTaskCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAddCommand(ctx),
		newAnalyzeCommand(ctx),
		newStartCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
		newUploadCommand(ctx),
		newDeleteCommand(ctx),
		newClearCommand(ctx),
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var follow bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Submit a link for download and delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Add(args[0], quality)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if awaitingQuality(*task) {
					fmt.Fprintf(out, "Task %s analyzed: %s\n", task.ID, displayTitle(*task))
					fmt.Fprintf(out, "Choose a quality with `tubego download %s --quality <preset>`\n", task.ID)
					return nil
				}
				fmt.Fprintf(out, "Task %s queued (%s)\n", task.ID, task.Quality)
				if !follow {
					return nil
				}
				final, err := followTask(cmd, client, task.ID)
				if err != nil {
					return err
				}
				printOutcome(cmd, *final)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Quality preset (defaults to the session setting)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Wait for the task and show progress")
	return cmd
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <url>",
		Short: "Fetch metadata for a link and register it without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Analyze(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task:      %s\n", resp.Task.ID)
				fmt.Fprintf(out, "Title:     %s\n", displayTitle(resp.Task))
				if resp.Uploader != "" {
					fmt.Fprintf(out, "Uploader:  %s\n", resp.Uploader)
				}
				if resp.Duration != "" {
					fmt.Fprintf(out, "Duration:  %s\n", resp.Duration)
				}
				if resp.Thumbnail != "" {
					fmt.Fprintf(out, "Thumbnail: %s\n", resp.Thumbnail)
				}
				fmt.Fprintf(out, "Start it with `tubego download %s --quality <preset>`\n", resp.Task.ID)
				return nil
			})
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var follow bool

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Start downloading an analyzed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Start(args[0], quality)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s started (%s)\n", task.ID, task.Quality)
				if !follow {
					return nil
				}
				final, err := followTask(cmd, client, task.ID)
				if err != nil {
					return err
				}
				printOutcome(cmd, *final)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Quality preset")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Wait for the task and show progress")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var active bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				tasks, err := client.List(ipc.ListRequest{Statuses: statuses, ActiveOnly: active})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]column{left("ID"), left("Status"), right("Progress"), left("Quality"), left("Title")},
					buildTaskRows(tasks),
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show tasks in these statuses")
	cmd.Flags().BoolVar(&active, "active", false, "Only show tasks that are downloading or uploading")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its available actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Show(args[0])
				if err != nil {
					return err
				}
				writeTaskDetail(cmd.OutOrStdout(), *task, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Cancel(args[0])
				if err != nil {
					if errors.Is(err, services.ErrCancelled) {
						fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", args[0])
						return nil
					}
					return err
				}
				if task.Status == string(registry.StatusCancelled) {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", task.ID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for task %s\n", task.ID)
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed download or upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Retry(args[0])
				if err != nil {
					return err
				}
				what := "download"
				if task.Status == string(registry.StatusSuccess) {
					what = "upload"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %s for task %s\n", what, task.ID)
				return nil
			})
		},
	}
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <id>",
		Short: "Upload a downloaded task now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Upload(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Upload started for task %s\n", task.ID)
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task and its file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.Delete(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", task.ID)
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget finished and failed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				count, err := client.Clear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d task(s)\n", count)
				return nil
			})
		},
	}
}

func awaitingQuality(task ipc.Task) bool {
	return task.Status == string(registry.StatusStarting) && strings.TrimSpace(task.Quality) == ""
}

func displayTitle(task ipc.Task) string {
	if title := strings.TrimSpace(task.Title); title != "" {
		return title
	}
	return task.Source
}

func printOutcome(cmd *cobra.Command, task ipc.Task) {
	out := cmd.OutOrStdout()
	switch registry.Status(task.Status) {
	case registry.StatusCompleted:
		fmt.Fprintf(out, "Task %s delivered: %s\n", task.ID, task.ArtifactName)
	case registry.StatusCancelled:
		fmt.Fprintf(out, "Task %s cancelled\n", task.ID)
	default:
		preview := textutil.ErrorPreview(task.LastError)
		fmt.Fprintf(out, "Task %s %s: %s\n", task.ID, statusLabel(task.Status), preview)
		if preview != strings.TrimSpace(task.LastError) {
			fmt.Fprintf(out, "Full error: `tubego show %s`\n", task.ID)
		}
		if len(task.Actions) > 0 {
			fmt.Fprintf(out, "Available actions: %s\n", strings.Join(task.Actions, ", "))
		}
	}
}
