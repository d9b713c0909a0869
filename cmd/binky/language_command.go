package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"binky/internal/ipc"
)

func newLanguageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "language [code|name|auto]",
		Short: "Show or set the transcription language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 1 {
				value = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Language(value)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if value != "" {
					fmt.Fprintf(out, "Transcription language set to %s (%s)\n", resp.DisplayName, resp.Language)
					return nil
				}
				fmt.Fprintf(out, "Transcription language: %s (%s)\n", resp.DisplayName, resp.Language)
				return nil
			})
		},
	}
}
