package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"binky/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckAudioURL_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckAudioURL(context.Background(), srv.URL+"/ep.mp3")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "audio/mpeg") {
		t.Fatalf("expected content type in detail, got %q", result.Detail)
	}
}

func TestCheckAudioURL_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	result := CheckAudioURL(context.Background(), srv.URL+"/missing.mp3")
	if result.Passed {
		t.Fatal("expected failure for 404")
	}
	if !strings.Contains(result.Detail, "404") {
		t.Fatalf("expected status in detail, got %q", result.Detail)
	}
}

func TestCheckAudioURL_MissingURL(t *testing.T) {
	result := CheckAudioURL(context.Background(), "  ")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckModels_DiarizationOptional(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWhisperModel("base"))
	results := RunAll(context.Background(), cfg)

	var whisper, segmentation *Result
	for i := range results {
		switch results[i].Name {
		case "Whisper model":
			whisper = &results[i]
		case "Segmentation model":
			segmentation = &results[i]
		}
	}
	if whisper == nil || !whisper.Passed {
		t.Fatalf("expected passing whisper check, got %+v", whisper)
	}
	if segmentation == nil {
		t.Fatal("expected segmentation check while diarization is enabled")
	}
	if segmentation.Passed || !segmentation.Optional {
		t.Fatalf("expected optional failing segmentation check, got %+v", segmentation)
	}
	for _, failed := range Failed(results) {
		if strings.HasSuffix(failed.Name, "model") {
			t.Fatalf("optional model check counted as failure: %+v", failed)
		}
	}
}

func TestCheckModels_SkipsDiarizationWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDiarization())
	results := RunAll(context.Background(), cfg)
	for _, r := range results {
		if r.Name == "Segmentation model" || r.Name == "Embedding model" {
			t.Fatalf("unexpected diarization check %q", r.Name)
		}
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DirectoriesAfterEnsure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWhisperModel("base"), testsupport.WithoutDiarization())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	for _, r := range results {
		if strings.HasSuffix(r.Name, "directory") && !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestCheckMemory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	need := EstimatedMemory(cfg)

	restore := sysinfo
	t.Cleanup(func() { sysinfo = restore })

	sysinfo = func(info *unix.Sysinfo_t) error {
		info.Totalram = need * 2
		info.Unit = 1
		return nil
	}
	if result := CheckMemory(cfg); !result.Passed {
		t.Fatalf("expected pass with ample memory, got %s", result.Detail)
	}

	sysinfo = func(info *unix.Sysinfo_t) error {
		info.Totalram = need / 2
		info.Unit = 1
		return nil
	}
	if result := CheckMemory(cfg); result.Passed {
		t.Fatal("expected failure with too little memory")
	}

	sysinfo = func(*unix.Sysinfo_t) error { return errors.New("boom") }
	if result := CheckMemory(cfg); result.Passed {
		t.Fatal("expected failure when sysinfo fails")
	}
}

func TestEstimatedMemoryScalesWithSlots(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxConcurrentInference = 1
	one := EstimatedMemory(cfg)
	cfg.Pipeline.MaxConcurrentInference = 2
	two := EstimatedMemory(cfg)
	if two <= one {
		t.Fatalf("expected estimate to grow with slots: %d vs %d", one, two)
	}
}

func TestCheckTempSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckTempSpace(dir, 1); !result.Passed {
		t.Fatalf("expected pass for one byte, got %s", result.Detail)
	}
	if result := CheckTempSpace(dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure for impossible requirement")
	}
	if result := CheckTempSpace(filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		3 << 30: "3.0 GiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
