package ipc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"binky/internal/daemon"
	"binky/internal/ipc"
	"binky/internal/logging"
	"binky/internal/models"
	"binky/internal/pipeline"
	"binky/internal/testsupport"
	"binky/internal/transcription"
)

type echoModel struct{}

func (echoModel) Name() string { return "echo" }

func (echoModel) NewSession() (transcription.Session, error) { return echoSession{}, nil }

func (echoModel) Close() error { return nil }

type echoSession struct{}

func (echoSession) Transcribe(_ []float32, language string, progress func(int)) ([]transcription.WindowSegment, error) {
	progress(100)
	return []transcription.WindowSegment{{Text: "hello " + language, Start: 0, End: 500 * time.Millisecond}}, nil
}

func startServer(t *testing.T) (*ipc.Client, *daemon.Daemon, string) {
	t.Helper()

	audio := testsupport.SilentMP3(40)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		_, _ = w.Write(audio)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithWhisperModel("echo"), testsupport.WithoutDiarization())
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	events := pipeline.NewBroadcaster(64)
	pipe, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Store:  st,
		Logger: logger,
		Sink:   events,
		LoadTranscriber: func(models.Whisper) (transcription.Model, error) {
			return echoModel{}, nil
		},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	d, err := daemon.New(cfg, st, pipe, events, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	server, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, d, srv.URL + "/episode.mp3"
}

func TestIPCServerClient(t *testing.T) {
	client, _, audioURL := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.Language != "de" {
		t.Fatalf("expected default language, got %q", status.Language)
	}

	added, err := client.AddEpisode(ipc.AddEpisodeRequest{Title: "Pilot", AudioURL: audioURL})
	if err != nil {
		t.Fatalf("AddEpisode failed: %v", err)
	}
	if added.Episode.TranscriptionStatus != "not_started" {
		t.Fatalf("unexpected initial status %q", added.Episode.TranscriptionStatus)
	}

	langResp, err := client.Language("English")
	if err != nil {
		t.Fatalf("Language set failed: %v", err)
	}
	if langResp.Language != "en" || langResp.DisplayName != "English" {
		t.Fatalf("unexpected language response %+v", langResp)
	}

	cursor := uint64(0)
	if _, err := client.Transcribe(added.Episode.ID); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	done := false
	for !done && time.Now().Before(deadline) {
		resp, err := client.Events(ipc.EventsRequest{Since: cursor, Wait: true})
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		cursor = resp.Next
		for _, evt := range resp.Events {
			if evt.Name == pipeline.EventError {
				t.Fatalf("unexpected error event: %s", evt.Data.Message)
			}
			if evt.Name == pipeline.EventDone && evt.Data.Stage == "transcription" {
				done = true
			}
		}
	}
	if !done {
		t.Fatal("timed out waiting for Done event")
	}

	transcript, err := client.Transcript(added.Episode.ID)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if transcript.Language != "en" || transcript.Model != "echo" {
		t.Fatalf("unexpected transcript metadata %+v", transcript)
	}
	if len(transcript.Segments) == 0 || transcript.Segments[0].Text != "hello en" {
		t.Fatalf("unexpected segments %+v", transcript.Segments)
	}

	episodes, err := client.Episodes(0)
	if err != nil {
		t.Fatalf("Episodes failed: %v", err)
	}
	if len(episodes.Episodes) != 1 || episodes.Episodes[0].TranscriptionStatus != "done" {
		t.Fatalf("unexpected episodes %+v", episodes.Episodes)
	}
	if episodes.Episodes[0].DurationMS <= 0 {
		t.Fatal("expected probed duration to be recorded")
	}

	queues, err := client.QueueStatus()
	if err != nil {
		t.Fatalf("QueueStatus failed: %v", err)
	}
	if queues.Transcription.QueueLength != 0 {
		t.Fatalf("expected empty queue, got %+v", queues.Transcription)
	}
}

func TestIPCErrors(t *testing.T) {
	client, _, _ := startServer(t)

	if _, err := client.Transcribe(0); err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.Transcript(42); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := client.Diarize(42); err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Fatalf("expected configuration error with diarization disabled, got %v", err)
	}
	if _, err := client.Language("klingon"); err == nil {
		t.Fatal("expected unknown language to fail")
	}

	cancelResp, err := client.CancelTranscription()
	if err != nil {
		t.Fatalf("CancelTranscription failed: %v", err)
	}
	if cancelResp.Cancelled {
		t.Fatal("expected cancel with no active job to report false")
	}

	modelsResp, err := client.Models()
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(modelsResp.Models) == 0 || !modelsResp.Models[0].Available {
		t.Fatalf("expected whisper model available, got %+v", modelsResp.Models)
	}
}

func TestIPCBatchEnqueue(t *testing.T) {
	client, _, audioURL := startServer(t)

	empty, err := client.TranscribeAll()
	if err != nil {
		t.Fatalf("TranscribeAll on empty catalog: %v", err)
	}
	if len(empty.Queued) != 0 {
		t.Fatalf("expected nothing queued, got %+v", empty)
	}

	var ids []int64
	for _, title := range []string{"One", "Two"} {
		added, err := client.AddEpisode(ipc.AddEpisodeRequest{Title: title, AudioURL: audioURL})
		if err != nil {
			t.Fatalf("AddEpisode: %v", err)
		}
		ids = append(ids, added.Episode.ID)
	}
	batch, err := client.TranscribeAll()
	if err != nil {
		t.Fatalf("TranscribeAll: %v", err)
	}
	if len(batch.Queued) != 2 || batch.Queued[0] != ids[0] || batch.Queued[1] != ids[1] {
		t.Fatalf("expected both episodes queued in order, got %+v", batch)
	}
	if _, err := client.DiarizeAll(); err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Fatalf("expected configuration error with diarization disabled, got %v", err)
	}
}

func TestIPCStopRequest(t *testing.T) {
	client, d, _ := startServer(t)

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("expected stopping acknowledgement")
	}
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("expected daemon done channel to close")
	}
}
