package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"binky/internal/ipc"
)

// stageCommand describes one enqueue verb.
type stageCommand struct {
	use   string
	short string
	stage string
	one   func(*ipc.Client, int64) (*ipc.EnqueueResponse, error)
	all   func(*ipc.Client) (*ipc.BatchResponse, error)
}

func newEnqueueCommand(ctx *commandContext, spec stageCommand) *cobra.Command {
	var (
		follow bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if len(args) > 0 {
					return errors.New("--all does not take an episode id")
				}
				if follow {
					return errors.New("--follow needs a single episode id")
				}
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := spec.all(client)
					if err != nil {
						return err
					}
					printBatch(cmd, spec.stage, resp)
					return nil
				})
			}
			if len(args) == 0 {
				return errors.New("episode id required (or pass --all)")
			}
			id, err := parseEpisodeID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				cursor, err := currentCursor(client)
				if err != nil {
					return err
				}
				resp, err := spec.one(client, id)
				if err != nil {
					return err
				}
				printEnqueued(cmd, spec.stage, resp)
				if !follow {
					return nil
				}
				return followEpisode(cmd, client, cursor, id, spec.stage)
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the job finishes")
	cmd.Flags().BoolVar(&all, "all", false, "Queue every eligible episode")
	return cmd
}

func newJobCommands(ctx *commandContext) []*cobra.Command {
	transcribeCmd := newEnqueueCommand(ctx, stageCommand{
		use:   "transcribe [episode-id]",
		short: "Queue an episode for transcription",
		stage: "transcription",
		one:   (*ipc.Client).Transcribe,
		all:   (*ipc.Client).TranscribeAll,
	})
	diarizeCmd := newEnqueueCommand(ctx, stageCommand{
		use:   "diarize [episode-id]",
		short: "Queue an episode for speaker diarization",
		stage: "diarization",
		one:   (*ipc.Client).Diarize,
		all:   (*ipc.Client).DiarizeAll,
	})

	cancelCmd := &cobra.Command{
		Use:       "cancel <transcription|diarization>",
		Short:     "Cancel the running job of a stage",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"transcription", "diarization"},
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := strings.ToLower(strings.TrimSpace(args[0]))
			return ctx.withClient(func(client *ipc.Client) error {
				var (
					resp *ipc.CancelResponse
					err  error
				)
				switch stage {
				case "transcription", "transcribe":
					stage = "transcription"
					resp, err = client.CancelTranscription()
				case "diarization", "diarize":
					stage = "diarization"
					resp, err = client.CancelDiarization()
				default:
					return fmt.Errorf("unknown stage %q (expected transcription or diarization)", args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Cancelled {
					fmt.Fprintf(out, "Cancelled running %s job\n", stage)
				} else {
					fmt.Fprintf(out, "No %s job is running\n", stage)
				}
				return nil
			})
		},
	}

	var queueJSON bool
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Show both stage queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueStatus()
				if err != nil {
					return err
				}
				if queueJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Stage", "Active", "Queued", "Processing"},
					queueRows(resp.Transcription, resp.Diarization),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "Output as JSON")

	return []*cobra.Command{transcribeCmd, diarizeCmd, cancelCmd, queueCmd}
}

func parseEpisodeID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid episode id %q", raw)
	}
	return id, nil
}

func printEnqueued(cmd *cobra.Command, stage string, resp *ipc.EnqueueResponse) {
	out := cmd.OutOrStdout()
	if resp.QueueStatus.ActiveEpisodeID == resp.EpisodeID {
		fmt.Fprintf(out, "Episode %d %s started\n", resp.EpisodeID, stage)
		return
	}
	fmt.Fprintf(out, "Episode %d queued for %s (%d waiting)\n", resp.EpisodeID, stage, resp.QueueStatus.QueueLength)
}

func printBatch(cmd *cobra.Command, stage string, resp *ipc.BatchResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Queued) == 0 && len(resp.Skipped) == 0 {
		fmt.Fprintf(out, "No episodes are ready for %s\n", stage)
		return
	}
	fmt.Fprintf(out, "Queued %d episode(s) for %s", len(resp.Queued), stage)
	if len(resp.Skipped) > 0 {
		fmt.Fprintf(out, ", %d already queued", len(resp.Skipped))
	}
	fmt.Fprintln(out)
}
