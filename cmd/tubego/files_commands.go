package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tubego/internal/ipc"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Manage downloaded files waiting in the work directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFiles(ctx, cmd)
		},
	}

	filesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List files in the work directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFiles(ctx, cmd)
		},
	})

	filesCmd.AddCommand(&cobra.Command{
		Use:   "upload <index|name>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				task, err := client.FileUpload(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Upload started for %s (task %s)\n", task.ArtifactName, task.ID)
				return nil
			})
		},
	})

	filesCmd.AddCommand(&cobra.Command{
		Use:     "delete <index|name>",
		Aliases: []string{"rm"},
		Short:   "Delete a local file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				name, err := client.FileDelete(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
				return nil
			})
		},
	})

	var confirm bool
	cleanCmd := &cobra.Command{
		Use:   "clean-uploaded",
		Short: "Remove every file from the archive of delivered uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to empty the archive without --yes")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				count, err := client.CleanArchive()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d archived file(s)\n", count)
				return nil
			})
		},
	}
	cleanCmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm removal")
	filesCmd.AddCommand(cleanCmd)

	return filesCmd
}

func listFiles(ctx *commandContext, cmd *cobra.Command) error {
	return ctx.withClient(func(client *ipc.Client) error {
		files, err := client.Files()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintln(out, "No local files")
			return nil
		}
		rows := make([][]string, 0, len(files))
		for _, f := range files {
			rows = append(rows, []string{strconv.Itoa(f.Index), f.Name, humanize.IBytes(uint64(f.Size))})
		}
		fmt.Fprint(out, renderTable([]column{right("#"), left("Name"), right("Size")}, rows))
		return nil
	})
}
