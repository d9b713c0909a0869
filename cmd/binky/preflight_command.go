package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"binky/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var (
		audioURL string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, models, memory, and disk space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if url := strings.TrimSpace(audioURL); url != "" {
				results = append(results, preflight.CheckAudioURL(cmd.Context(), url))
			}
			failed := preflight.Failed(results)

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, result := range results {
					kind := statusOK
					if !result.Passed {
						kind = statusError
						if result.Optional {
							kind = statusWarn
						}
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
			}
			if len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, result := range failed {
					names = append(names, result.Name)
				}
				return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&audioURL, "url", "", "Also check that an audio URL is reachable")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
