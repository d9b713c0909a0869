package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"binky/internal/daemonctl"
	"binky/internal/ipc"
	"binky/internal/models"
)

// newModelsCommand reports model files. It reads the models directory
// directly when the daemon is not running.
func newModelsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show model availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var statuses []ipc.ModelStatus
			if client, dialErr := ipc.Dial(ctx.socketPath()); dialErr == nil {
				resp, callErr := client.Models()
				client.Close()
				if callErr != nil {
					return callErr
				}
				statuses = resp.Models
			} else {
				statuses = models.NewResolver(cfg).Status()
			}
			if asJSON {
				return writeJSON(cmd, ipc.ModelsResponse{Models: statuses})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Models directory: %s\n", cfg.Paths.ModelsDir)
			summary := daemonctl.BuildModelSummary(statuses, cfg.Diarization.Enabled)
			for _, line := range modelLines(statuses, summary, cfg.Diarization.Enabled, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
