package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"binky/internal/ipc"
	"binky/internal/testsupport"
)

var registeredPattern = regexp.MustCompile(`Registered episode (\d+)`)

func TestCLITranscribeFlow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"language", "en"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	requireContains(t, out, "English (en)")

	out, _, err = runCLI(t, []string{"episodes", "add", "--title", "Pilot", "--url", env.audioURL}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("episodes add: %v", err)
	}
	match := registeredPattern.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("unexpected add output %q", out)
	}
	id := match[1]

	out, _, err = runCLI(t, []string{"transcribe", id, "--follow"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "Episode "+id)
	requireContains(t, out, "Done")

	out, _, err = runCLI(t, []string{"transcript", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	requireContains(t, out, "hello en")

	out, _, err = runCLI(t, []string{"transcript", id, "--segments"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcript --segments: %v", err)
	}
	requireContains(t, out, "[00:00.000 - 00:00.750] hello en")

	out, _, err = runCLI(t, []string{"transcript", id, "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcript --json: %v", err)
	}
	var transcript ipc.TranscriptResponse
	if err := json.Unmarshal([]byte(out), &transcript); err != nil {
		t.Fatalf("decode transcript json: %v", err)
	}
	if transcript.Model != "echo" || transcript.Language != "en" {
		t.Fatalf("unexpected transcript metadata %+v", transcript)
	}

	out, _, err = runCLI(t, []string{"episodes", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("episodes list: %v", err)
	}
	requireContains(t, out, "Pilot")
	requireContains(t, out, "done")

	out, _, err = runCLI(t, []string{"events", "--episode", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	requireContains(t, out, "transcription")
	requireContains(t, out, "Done")
}

func TestCLIQueueAndCancel(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	requireContains(t, out, "transcription")
	requireContains(t, out, "diarization")

	out, _, err = runCLI(t, []string{"cancel", "transcription"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No transcription job is running")

	if _, _, err := runCLI(t, []string{"cancel", "mastering"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown stage to fail")
	}
}

func TestCLIErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"transcribe", "abc"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected invalid id to fail")
	}
	_, _, err := runCLI(t, []string{"transcript", "999"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	_, _, err = runCLI(t, []string{"diarize", "1"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Fatalf("expected configuration error for disabled diarization, got %v", err)
	}
	_, _, err = runCLI(t, []string{"language", "klingon"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected unknown language to fail")
	}
}

func TestCLIBatchEnqueue(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.AddEpisode(t, env.store, "One", env.audioURL)
	testsupport.AddEpisode(t, env.store, "Two", env.audioURL)

	out, _, err := runCLI(t, []string{"transcribe", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcribe --all: %v", err)
	}
	requireContains(t, out, "Queued 2 episode(s) for transcription")

	if _, _, err := runCLI(t, []string{"transcribe", "--all", "1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected --all with an id to fail")
	}
	if _, _, err := runCLI(t, []string{"transcribe"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected a missing id to fail")
	}
	_, _, err = runCLI(t, []string{"diarize", "--all"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Fatalf("expected configuration error for disabled diarization, got %v", err)
	}
}

func TestCLIStatusRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.AddEpisode(t, env.store, "Pilot", env.audioURL)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, "== Models ==")
	requireContains(t, out, "== Queues ==")
	requireContains(t, out, "not_started")
}

func TestCLIDialErrorWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{"queue"}, cfg.SocketPath(), configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "binky start")

	out, _, err := runCLI(t, []string{"status"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("offline status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "No episodes registered")
}

func TestCLIConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "binky.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(t.TempDir(), "none.sock"), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(t.TempDir(), "none.sock"), ""); err == nil {
		t.Fatal("expected existing config to be rejected")
	}
}

func TestCLIConfigValidateReportsEffectiveSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWhisperModel("echo"), testsupport.WithDiarizationModels())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+configPath)
	requireContains(t, out, "ggml-echo.bin")
	requireContains(t, out, "samples at 16000 Hz")
	requireContains(t, out, "German (de)")
	requireContains(t, out, "model.onnx")
	requireContains(t, out, "solo below 5.0% of talk time")
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "validate", "--json"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("config validate --json: %v", err)
	}
	var report configReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Problems != 0 || report.Defaults || len(report.Settings) == 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCLIConfigValidateFlagsMissingModel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDiarization())
	cfg.Transcription.Model = "large-v3"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, cfg.SocketPath(), configPath)
	if err == nil || !strings.Contains(err.Error(), "1 problem") {
		t.Fatalf("expected one problem, got %v", err)
	}
	requireContains(t, out, "[ERROR]")
	requireContains(t, out, "large-v3")
	if strings.Contains(out, "Configuration valid") {
		t.Fatalf("expected no success line, got %q", out)
	}
}

func TestCLILogs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)
	socket := cfg.SocketPath()

	out, _, err := runCLI(t, []string{"logs"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs without file: %v", err)
	}
	requireContains(t, out, "No log output")

	if err := os.WriteFile(cfg.LogPath(), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err = runCLI(t, []string{"logs", "-n", "2"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestCLINotifyTestDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "binky.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"notify", "test"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}
