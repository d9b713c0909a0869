package daemon_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"binky/internal/config"
	"binky/internal/daemon"
	"binky/internal/pipeline"
	"binky/internal/services"
	"binky/internal/store"
	"binky/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	store  *store.Store
	events *pipeline.Broadcaster
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t, testsupport.WithoutDiarization())
	}
	st := testsupport.MustOpenStore(t, cfg)
	events := pipeline.NewBroadcaster(16)
	pipe, err := pipeline.New(pipeline.Options{Config: cfg, Store: st, Sink: events})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	d, err := daemon.New(cfg, st, pipe, events, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return &fixture{cfg: cfg, store: st, events: events, daemon: d}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if status.Language != "de" {
		t.Fatalf("expected default language de, got %q", status.Language)
	}
	if len(status.Models) != 3 {
		t.Fatalf("expected 3 model entries, got %d", len(status.Models))
	}

	// Second start should fail
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop(ctx)
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockRejectsSecondInstance(t *testing.T) {
	first := newFixture(t, nil)
	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := newFixture(t, first.cfg)
	err := second.daemon.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	first.daemon.Stop(ctx)
	if err := second.daemon.Start(ctx); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
}

func TestDaemonStartResetsInFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	downloading := testsupport.AddEpisode(t, f.store, "one", "http://example.invalid/1.mp3")
	processing := testsupport.AddEpisode(t, f.store, "two", "http://example.invalid/2.mp3")
	done := testsupport.AddEpisode(t, f.store, "three", "http://example.invalid/3.mp3")

	if err := f.store.SetTranscriptionStatus(ctx, downloading.ID, store.TranscriptionDownloading, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := f.store.SetDiarizationStatus(ctx, processing.ID, store.DiarizationProcessing, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := f.store.SetTranscriptionStatus(ctx, done.ID, store.TranscriptionDone, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := testsupport.MustEpisode(t, f.store, downloading.ID).TranscriptionStatus; got != store.TranscriptionNotStarted {
		t.Fatalf("expected downloading to reset, got %s", got)
	}
	if got := testsupport.MustEpisode(t, f.store, processing.ID).DiarizationStatus; got != store.DiarizationNotStarted {
		t.Fatalf("expected processing to reset, got %s", got)
	}
	if got := testsupport.MustEpisode(t, f.store, done.ID).TranscriptionStatus; got != store.TranscriptionDone {
		t.Fatalf("expected done to survive reconciliation, got %s", got)
	}
}

func TestDaemonLanguage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	code, err := f.daemon.SetLanguage(ctx, "English")
	if err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if code != "en" {
		t.Fatalf("expected en, got %q", code)
	}
	got, err := f.daemon.Language(ctx)
	if err != nil || got != "en" {
		t.Fatalf("Language = %q, %v", got, err)
	}

	if _, err := f.daemon.SetLanguage(ctx, "klingon"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got, _ := f.daemon.Language(ctx); got != "en" {
		t.Fatalf("rejected value must not overwrite setting, got %q", got)
	}
}

func TestDaemonResultLookups(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.daemon.Transcript(ctx, 99); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found transcript, got %v", err)
	}
	if _, err := f.daemon.Segments(ctx, 99); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found segments, got %v", err)
	}
	if _, err := f.daemon.AddEpisode(ctx, store.NewEpisode{Title: "no url"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	episode, err := f.daemon.AddEpisode(ctx, store.NewEpisode{Title: "ep", AudioURL: "http://example.invalid/ep.mp3"})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}
	if err := f.store.ReplaceDiarizationSegments(ctx, episode.ID, []store.DiarizationSegment{
		{StartMS: 0, EndMS: 1000, SpeakerLabel: "SPEAKER_0", Confidence: 1},
	}); err != nil {
		t.Fatalf("replace segments: %v", err)
	}
	segments, err := f.daemon.Segments(ctx, episode.ID)
	if err != nil || len(segments) != 1 {
		t.Fatalf("Segments = %v, %v", segments, err)
	}
	episodes, err := f.daemon.Episodes(ctx, 0)
	if err != nil || len(episodes) != 1 {
		t.Fatalf("Episodes = %v, %v", episodes, err)
	}
}

func TestDaemonEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.events.Emit(pipeline.Event{Name: pipeline.EventProgress, Data: pipeline.EventData{EpisodeID: 1, Stage: "transcription"}})
	events, next, err := f.daemon.Events(ctx, 0, 0, false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Name != pipeline.EventProgress {
		t.Fatalf("unexpected events %+v", events)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	events, after, err := f.daemon.Events(waitCtx, next, 0, true)
	if err != nil {
		t.Fatalf("expected quiet wait to return cleanly, got %v", err)
	}
	if len(events) != 0 || after != next {
		t.Fatalf("expected no new events at cursor %d, got %d events at %d", next, len(events), after)
	}
}

func TestDaemonRequestStop(t *testing.T) {
	f := newFixture(t, nil)
	f.daemon.RequestStop()
	f.daemon.RequestStop()
	select {
	case <-f.daemon.Done():
	default:
		t.Fatal("expected done channel to be closed")
	}
}
