package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"binky/internal/config"
	"binky/internal/daemon"
	"binky/internal/ipc"
	"binky/internal/logging"
	"binky/internal/models"
	"binky/internal/pipeline"
	"binky/internal/store"
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
	return []transcription.WindowSegment{{Text: "hello " + language, Start: 0, End: 750 * time.Millisecond}}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	audioURL   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	audio := testsupport.SilentMP3(40)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		_, _ = w.Write(audio)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithWhisperModel("echo"), testsupport.WithoutDiarization())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	events := pipeline.NewBroadcaster(256)
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
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	server, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		d.Stop(context.Background())
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()

	t.Cleanup(func() {
		cancel()
		server.Close()
		d.Stop(context.Background())
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		audioURL:   srv.URL + "/episode.mp3",
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
