package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"binky/internal/ipc"
	"binky/internal/pipeline"
)

// latestSequence asks for events after the largest possible cursor, which
// returns none and the broadcaster's current position.
const latestSequence = ^uint64(0)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		since     uint64
		limit     int
		follow    bool
		asJSON    bool
		episodeID int64
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent pipeline events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				cursor := since
				out := cmd.OutOrStdout()
				for {
					resp, err := client.Events(ipc.EventsRequest{Since: cursor, Limit: limit, Wait: follow})
					if err != nil {
						return err
					}
					cursor = resp.Next
					for _, evt := range resp.Events {
						if episodeID > 0 && evt.Data.EpisodeID != episodeID {
							continue
						}
						if asJSON {
							if err := writeJSON(cmd, evt); err != nil {
								return err
							}
							continue
						}
						fmt.Fprintln(out, formatEvent(evt))
					}
					if !follow {
						if len(resp.Events) == 0 && !asJSON {
							fmt.Fprintln(out, "No events")
						}
						return nil
					}
					if err := cmd.Context().Err(); err != nil {
						return err
					}
				}
			})
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events after this sequence number")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum events per poll (0 uses the daemon default)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output one JSON object per event")
	cmd.Flags().Int64Var(&episodeID, "episode", 0, "Only show events for this episode")
	return cmd
}

func currentCursor(client *ipc.Client) (uint64, error) {
	resp, err := client.Events(ipc.EventsRequest{Since: latestSequence})
	if err != nil {
		return 0, err
	}
	return resp.Next, nil
}

// followEpisode prints events for one episode and stage until the job
// reaches Done, Error, or Cancelled. Errors are returned so the exit status
// reflects the job outcome.
func followEpisode(cmd *cobra.Command, client *ipc.Client, cursor uint64, episodeID int64, stage string) error {
	out := cmd.OutOrStdout()
	lastPercent := -1
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		resp, err := client.Events(ipc.EventsRequest{Since: cursor, Wait: true})
		if err != nil {
			return err
		}
		cursor = resp.Next
		for _, evt := range resp.Events {
			if evt.Data.EpisodeID != episodeID || evt.Data.Stage != stage {
				continue
			}
			switch evt.Name {
			case pipeline.EventDownloading, pipeline.EventProgress:
				if evt.Data.Percent == nil || *evt.Data.Percent == lastPercent {
					continue
				}
				lastPercent = *evt.Data.Percent
				fmt.Fprintln(out, formatEvent(evt))
			case pipeline.EventDone:
				fmt.Fprintln(out, formatEvent(evt))
				return nil
			case pipeline.EventError:
				return fmt.Errorf("%s failed for episode %d: %s", stage, episodeID, evt.Data.Message)
			case pipeline.EventCancelled:
				fmt.Fprintln(out, formatEvent(evt))
				return nil
			default:
				fmt.Fprintln(out, formatEvent(evt))
			}
		}
	}
}

func formatEvent(evt ipc.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d %s %-13s #%-5d %-11s", evt.Sequence, evt.Timestamp.Local().Format(time.TimeOnly), evt.Data.Stage, evt.Data.EpisodeID, evt.Name)
	writeEventDetail(&b, evt)
	return strings.TrimRight(b.String(), " ")
}

func writeEventDetail(w io.Writer, evt ipc.Event) {
	data := evt.Data
	switch {
	case data.Percent != nil:
		fmt.Fprintf(w, " %3d%%", *data.Percent)
	case data.Text != "":
		if data.StartMS != nil && data.EndMS != nil {
			fmt.Fprintf(w, " [%s - %s]", formatTimestamp(*data.StartMS), formatTimestamp(*data.EndMS))
		}
		fmt.Fprintf(w, " %s", truncate(strings.TrimSpace(data.Text), 80))
	case data.Message != "":
		fmt.Fprintf(w, " %s", data.Message)
	case data.Solo != nil:
		if *data.Solo {
			fmt.Fprint(w, " solo")
		} else {
			fmt.Fprint(w, " multiple speakers")
		}
	}
}
