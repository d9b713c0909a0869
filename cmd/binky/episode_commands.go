package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"binky/internal/ipc"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "List and register episodes",
	}
	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesAddCommand(ctx))
	return episodesCmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Episodes(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Episodes)
				}
				out := cmd.OutOrStdout()
				if len(resp.Episodes) == 0 {
					fmt.Fprintln(out, "No episodes registered")
					return nil
				}
				rows := make([][]string, 0, len(resp.Episodes))
				for _, ep := range resp.Episodes {
					rows = append(rows, []string{
						strconv.FormatInt(ep.ID, 10),
						truncate(ep.Title, 48),
						formatDurationMS(ep.DurationMS),
						ep.TranscriptionStatus,
						ep.DiarizationStatus,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Duration", "Transcription", "Diarization"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum episodes to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newEpisodesAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title     string
		url       string
		podcastID int64
		duration  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an episode by audio URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("--url is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddEpisode(ipc.AddEpisodeRequest{
					PodcastID:  podcastID,
					Title:      strings.TrimSpace(title),
					AudioURL:   strings.TrimSpace(url),
					DurationMS: duration.Milliseconds(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered episode %d\n", resp.Episode.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Episode title")
	cmd.Flags().StringVar(&url, "url", "", "Remote audio URL (MP3)")
	cmd.Flags().Int64Var(&podcastID, "podcast", 0, "Owning podcast id")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Known episode duration (e.g. 1h02m)")
	return cmd
}

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON   bool
		segments bool
	)
	cmd := &cobra.Command{
		Use:   "transcript <episode-id>",
		Short: "Print an episode's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEpisodeID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Transcript(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !segments {
					fmt.Fprintln(out, resp.FullText)
					return nil
				}
				for _, seg := range resp.Segments {
					fmt.Fprintf(out, "[%s - %s] %s\n", formatTimestamp(seg.StartMS), formatTimestamp(seg.EndMS), strings.TrimSpace(seg.Text))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&segments, "segments", false, "Print timed segments instead of the full text")
	return cmd
}

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "segments <episode-id>",
		Short: "Print an episode's speaker segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEpisodeID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Segments(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Diarization: %s\n", resp.DiarizationStatus)
				if len(resp.Segments) == 0 {
					fmt.Fprintln(out, "No speaker segments stored")
					return nil
				}
				rows := make([][]string, 0, len(resp.Segments))
				for _, seg := range resp.Segments {
					rows = append(rows, []string{formatTimestamp(seg.StartMS), formatTimestamp(seg.EndMS), seg.SpeakerLabel})
				}
				fmt.Fprint(out, renderTable([]string{"Start", "End", "Speaker"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"Speaker", "Talk time"}, speakerTotalRows(resp.Segments), []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func speakerTotalRows(segments []ipc.SpeakerSegment) [][]string {
	totals := make(map[string]int64)
	for _, seg := range segments {
		totals[seg.SpeakerLabel] += seg.EndMS - seg.StartMS
	}
	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []string{label, formatDurationMS(totals[label])})
	}
	return rows
}

func formatDurationMS(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
