package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"binky/internal/store"
	"binky/internal/testsupport"
)

func TestAddAndGetEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	episode, err := st.AddEpisode(ctx, store.NewEpisode{PodcastID: 3, Title: " Folge 1 ", AudioURL: "https://example.com/1.mp3"})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}
	if episode.ID == 0 {
		t.Fatal("expected episode id to be assigned")
	}
	if episode.Title != "Folge 1" || episode.PodcastID != 3 {
		t.Fatalf("unexpected episode: %#v", episode)
	}
	if episode.TranscriptionStatus != store.TranscriptionNotStarted || episode.DiarizationStatus != store.DiarizationNotStarted {
		t.Fatalf("expected fresh statuses, got %s/%s", episode.TranscriptionStatus, episode.DiarizationStatus)
	}
	if episode.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be parsed")
	}

	missing, err := st.GetEpisode(ctx, episode.ID+100)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown episode, got %#v", missing)
	}
}

func TestAddEpisodeRequiresAudioURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.AddEpisode(context.Background(), store.NewEpisode{Title: "no audio"}); err == nil {
		t.Fatal("expected error when audio url missing")
	}
}

func TestSetStatusClearsErrorText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	episode := testsupport.AddEpisode(t, st, "ep", "https://example.com/a.mp3")

	if err := st.SetTranscriptionStatus(ctx, episode.ID, store.TranscriptionError, "download failed: 503"); err != nil {
		t.Fatalf("SetTranscriptionStatus: %v", err)
	}
	got := testsupport.MustEpisode(t, st, episode.ID)
	if got.TranscriptionStatus != store.TranscriptionError || got.TranscriptionError != "download failed: 503" {
		t.Fatalf("unexpected error state: %s %q", got.TranscriptionStatus, got.TranscriptionError)
	}

	if err := st.SetTranscriptionStatus(ctx, episode.ID, store.TranscriptionQueued, "stale text"); err != nil {
		t.Fatalf("SetTranscriptionStatus: %v", err)
	}
	got = testsupport.MustEpisode(t, st, episode.ID)
	if got.TranscriptionStatus != store.TranscriptionQueued || got.TranscriptionError != "" {
		t.Fatalf("expected error cleared, got %s %q", got.TranscriptionStatus, got.TranscriptionError)
	}

	if err := st.SetDiarizationStatus(ctx, episode.ID, store.DiarizationError, ""); err != nil {
		t.Fatalf("SetDiarizationStatus: %v", err)
	}
	got = testsupport.MustEpisode(t, st, episode.ID)
	if got.DiarizationError == "" {
		t.Fatal("expected a placeholder message for an empty error text")
	}
}

func TestSetStatusRejectsUnknownValues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	episode := testsupport.AddEpisode(t, st, "ep", "https://example.com/a.mp3")

	if err := st.SetTranscriptionStatus(ctx, episode.ID, store.TranscriptionStatus("solo"), ""); err == nil {
		t.Fatal("expected invalid transcription status to be rejected")
	}
	if err := st.SetDiarizationStatus(ctx, episode.ID+50, store.DiarizationDone, ""); !errors.Is(err, store.ErrEpisodeNotFound) {
		t.Fatalf("expected ErrEpisodeNotFound, got %v", err)
	}
}

func TestResetInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		transcription store.TranscriptionStatus
		diarization   store.DiarizationStatus
		wantT         store.TranscriptionStatus
		wantD         store.DiarizationStatus
	}{
		{store.TranscriptionQueued, store.DiarizationNotStarted, store.TranscriptionNotStarted, store.DiarizationNotStarted},
		{store.TranscriptionDownloading, store.DiarizationNotStarted, store.TranscriptionNotStarted, store.DiarizationNotStarted},
		{store.TranscriptionTranscribing, store.DiarizationNotStarted, store.TranscriptionNotStarted, store.DiarizationNotStarted},
		{store.TranscriptionDone, store.DiarizationProcessing, store.TranscriptionDone, store.DiarizationNotStarted},
		{store.TranscriptionDone, store.DiarizationQueued, store.TranscriptionDone, store.DiarizationNotStarted},
		{store.TranscriptionDone, store.DiarizationSolo, store.TranscriptionDone, store.DiarizationSolo},
		{store.TranscriptionError, store.DiarizationNotStarted, store.TranscriptionError, store.DiarizationNotStarted},
	}

	ids := make([]int64, len(cases))
	for i, tc := range cases {
		episode := testsupport.AddEpisode(t, st, fmt.Sprintf("ep-%d", i), "https://example.com/a.mp3")
		ids[i] = episode.ID
		if err := st.SetTranscriptionStatus(ctx, episode.ID, tc.transcription, "boom"); err != nil {
			t.Fatalf("SetTranscriptionStatus: %v", err)
		}
		if err := st.SetDiarizationStatus(ctx, episode.ID, tc.diarization, ""); err != nil {
			t.Fatalf("SetDiarizationStatus: %v", err)
		}
	}

	summary, err := st.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight: %v", err)
	}
	if summary.Transcription != 3 || summary.Diarization != 2 {
		t.Fatalf("unexpected reset summary: %+v", summary)
	}

	for i, tc := range cases {
		got := testsupport.MustEpisode(t, st, ids[i])
		if got.TranscriptionStatus != tc.wantT || got.DiarizationStatus != tc.wantD {
			t.Fatalf("case %d: got %s/%s, want %s/%s", i, got.TranscriptionStatus, got.DiarizationStatus, tc.wantT, tc.wantD)
		}
		if got.TranscriptionStatus != store.TranscriptionError && got.TranscriptionError != "" {
			t.Fatalf("case %d: expected error text cleared, got %q", i, got.TranscriptionError)
		}
	}
}

func TestEligibleEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fresh := testsupport.AddEpisode(t, st, "fresh", "https://example.com/1.mp3")
	done := testsupport.AddEpisode(t, st, "done", "https://example.com/2.mp3")
	if err := st.SetTranscriptionStatus(ctx, done.ID, store.TranscriptionDone, ""); err != nil {
		t.Fatalf("SetTranscriptionStatus: %v", err)
	}

	transcribable, err := st.EligibleEpisodes(ctx, store.StageTranscription)
	if err != nil {
		t.Fatalf("EligibleEpisodes: %v", err)
	}
	if len(transcribable) != 1 || transcribable[0].ID != fresh.ID {
		t.Fatalf("unexpected transcription eligibility: %#v", transcribable)
	}

	diarizable, err := st.EligibleEpisodes(ctx, store.StageDiarization)
	if err != nil {
		t.Fatalf("EligibleEpisodes: %v", err)
	}
	if len(diarizable) != 1 || diarizable[0].ID != done.ID {
		t.Fatalf("unexpected diarization eligibility: %#v", diarizable)
	}

	if _, err := st.EligibleEpisodes(ctx, store.Stage("topics")); err == nil {
		t.Fatal("expected unknown stage error")
	}
}

func TestReplaceDiarizationSegmentsReplacesWholeSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	episode := testsupport.AddEpisode(t, st, "ep", "https://example.com/a.mp3")
	other := testsupport.AddEpisode(t, st, "other", "https://example.com/b.mp3")

	makeSegments := func(n int) []store.DiarizationSegment {
		segments := make([]store.DiarizationSegment, n)
		for i := range segments {
			segments[i] = store.DiarizationSegment{
				StartMS:      int64(i * 1000),
				EndMS:        int64(i*1000 + 900),
				SpeakerLabel: fmt.Sprintf("SPEAKER_%d", i%2),
				Confidence:   1,
			}
		}
		return segments
	}

	if err := st.ReplaceDiarizationSegments(ctx, episode.ID, makeSegments(10)); err != nil {
		t.Fatalf("ReplaceDiarizationSegments: %v", err)
	}
	if err := st.ReplaceDiarizationSegments(ctx, other.ID, makeSegments(4)); err != nil {
		t.Fatalf("ReplaceDiarizationSegments: %v", err)
	}
	if err := st.ReplaceDiarizationSegments(ctx, episode.ID, makeSegments(3)); err != nil {
		t.Fatalf("ReplaceDiarizationSegments: %v", err)
	}

	segments, err := st.DiarizationSegments(ctx, episode.ID)
	if err != nil {
		t.Fatalf("DiarizationSegments: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments after re-run, got %d", len(segments))
	}
	if segments[2].StartMS != 2000 || segments[2].SpeakerLabel != "SPEAKER_0" || segments[2].EpisodeID != episode.ID {
		t.Fatalf("unexpected segment: %#v", segments[2])
	}

	untouched, err := st.DiarizationSegments(ctx, other.ID)
	if err != nil {
		t.Fatalf("DiarizationSegments: %v", err)
	}
	if len(untouched) != 4 {
		t.Fatalf("expected other episode untouched, got %d rows", len(untouched))
	}
}

func TestUpsertTranscriptReplacesPriorRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	episode := testsupport.AddEpisode(t, st, "ep", "https://example.com/a.mp3")

	if got, err := st.GetTranscript(ctx, episode.ID); err != nil || got != nil {
		t.Fatalf("expected no transcript yet, got %#v, %v", got, err)
	}

	first := store.Transcript{
		EpisodeID: episode.ID,
		FullText:  "hallo",
		Segments:  []store.TranscriptSegment{{Text: "hallo", StartMS: 0, EndMS: 500}},
		Model:     "base",
		Language:  "de",
	}
	if err := st.UpsertTranscript(ctx, first); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}
	second := first
	second.FullText = "hallo welt"
	second.Segments = []store.TranscriptSegment{{Text: "hallo", StartMS: 0, EndMS: 500}, {Text: "welt", StartMS: 500, EndMS: 900}}
	second.Model = "large-v3"
	if err := st.UpsertTranscript(ctx, second); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}

	got, err := st.GetTranscript(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.FullText != "hallo welt" || got.Model != "large-v3" || got.Language != "de" {
		t.Fatalf("unexpected transcript: %#v", got)
	}
	if len(got.Segments) != 2 || got.Segments[1].EndMS != 900 {
		t.Fatalf("unexpected segments: %#v", got.Segments)
	}
}

func TestSettingsFallback(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	value, err := st.Setting(ctx, store.LanguageSettingKey, "de")
	if err != nil || value != "de" {
		t.Fatalf("expected fallback, got %q, %v", value, err)
	}
	if err := st.SetSetting(ctx, store.LanguageSettingKey, "en"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, store.LanguageSettingKey, "fr"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	value, err = st.Setting(ctx, store.LanguageSettingKey, "de")
	if err != nil || value != "fr" {
		t.Fatalf("expected stored value, got %q, %v", value, err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.AddEpisode(t, st, "ep", "https://example.com/a.mp3")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	episodes, err := reopened.ListEpisodes(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected persisted episode, got %d", len(episodes))
	}
	counts, err := reopened.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if counts.Transcription[store.TranscriptionNotStarted] != 1 {
		t.Fatalf("unexpected stats: %+v", counts)
	}
}

func TestSetEpisodeDurationKeepsCatalogValue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	probed := testsupport.AddEpisode(t, st, "probed", "https://example.com/p.mp3")
	if err := st.SetEpisodeDuration(ctx, probed.ID, 61_500); err != nil {
		t.Fatalf("SetEpisodeDuration: %v", err)
	}
	if got := testsupport.MustEpisode(t, st, probed.ID).DurationMS; got != 61_500 {
		t.Fatalf("duration = %d, want 61500", got)
	}

	catalog, err := st.AddEpisode(ctx, store.NewEpisode{Title: "catalog", AudioURL: "https://example.com/c.mp3", DurationMS: 1_000})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}
	if err := st.SetEpisodeDuration(ctx, catalog.ID, 9_000); err != nil {
		t.Fatalf("SetEpisodeDuration: %v", err)
	}
	if got := testsupport.MustEpisode(t, st, catalog.ID).DurationMS; got != 1_000 {
		t.Fatalf("expected catalog duration preserved, got %d", got)
	}
}
