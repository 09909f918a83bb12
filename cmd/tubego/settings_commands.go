package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tubego/internal/ipc"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the session language and default quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Settings()
				if err != nil {
					return err
				}
				writeSettings(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "quality <preset>",
		Short: "Set the default quality for new links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetQuality(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Default quality set to %s\n", resp.DefaultQuality)
				return nil
			})
		},
	})

	var detect bool
	languageCmd := &cobra.Command{
		Use:   "language [code]",
		Short: "Set the notification language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			language := ""
			if len(args) == 1 {
				language = args[0]
			}
			if detect && language == "" {
				language = localeFromEnv()
			}
			if strings.TrimSpace(language) == "" {
				return errors.New("language code required (or use --detect)")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetLanguage(language, detect)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Language set to %s\n", resp.Language)
				return nil
			})
		},
	}
	languageCmd.Flags().BoolVar(&detect, "detect", false, "Match the closest supported language (defaults to $LANG)")
	settingsCmd.AddCommand(languageCmd)

	return settingsCmd
}

func writeSettings(out io.Writer, resp *ipc.SettingsResponse) {
	fmt.Fprintf(out, "Language:        %s (supported: %s)\n", resp.Language, strings.Join(resp.Languages, ", "))
	fmt.Fprintf(out, "Default quality: %s (presets: %s)\n", resp.DefaultQuality, strings.Join(resp.Qualities, ", "))
}

func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
