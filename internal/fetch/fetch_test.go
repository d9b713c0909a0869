package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"binky/internal/fetch"
	"binky/internal/services"
)

func TestDownloadWritesFileAndMapsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 4096)
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	d := fetch.New(fetch.Options{ChunkSize: 4096, UserAgent: "binky-test"})
	dest := fetch.TempPath(t.TempDir(), 5, "transcription")

	var reports []int
	result, err := d.Download(context.Background(), server.URL, dest, fetch.Range{Lo: 0, Hi: 50}, func(p int) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Bytes != int64(len(payload)) || result.ContentType != "audio/mpeg" || result.Path != dest {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotUA != "binky-test" {
		t.Fatalf("expected user agent to be sent, got %q", gotUA)
	}
	onDisk, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(onDisk, payload) {
		t.Fatal("downloaded content mismatch")
	}

	if len(reports) == 0 || reports[0] != 0 || reports[len(reports)-1] != 50 {
		t.Fatalf("expected progress from 0 to 50, got %v", reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Fatalf("expected strictly increasing reports, got %v", reports)
		}
	}
}

func TestDownloadUnknownLengthStaysAtLowerBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			_, _ = w.Write(bytes.Repeat([]byte{1}, 1024))
			flusher.Flush()
		}
	}))
	defer server.Close()

	d := fetch.New(fetch.Options{ChunkSize: 512})
	var reports []int
	_, err := d.Download(context.Background(), server.URL, filepath.Join(t.TempDir(), "a.mp3"), fetch.Range{Lo: 10, Hi: 40}, func(p int) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(reports) != 1 || reports[0] != 10 {
		t.Fatalf("expected a single report at the lower bound, got %v", reports)
	}
}

func TestDownloadNon2xxIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "missing.mp3")
	_, err := fetch.New(fetch.Options{}).Download(context.Background(), server.URL, dest, fetch.Range{Hi: 50}, nil)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in message, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file left behind, stat err %v", statErr)
	}
}

func TestDownloadCancelRemovesPartialFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(16384))
		flusher := w.(http.Flusher)
		_, _ = w.Write(bytes.Repeat([]byte{2}, 8192))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "partial.mp3")
	d := fetch.New(fetch.Options{ChunkSize: 1024})
	_, err := d.Download(ctx, server.URL, dest, fetch.Range{Hi: 50}, func(p int) {
		if p > 0 {
			cancel()
		}
	})
	if !errors.Is(err, fetch.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !services.IsCancelled(err) {
		t.Fatal("expected cancellation to be classified as cancelled")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file removed, stat err %v", statErr)
	}
}

func TestDownloadDroppedConnectionRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(65536))
		_, _ = w.Write(bytes.Repeat([]byte{3}, 8192))
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "dropped.mp3")
	d := fetch.New(fetch.Options{ChunkSize: 1024})
	var progressed bool
	_, err := d.Download(context.Background(), server.URL, dest, fetch.Range{Hi: 50}, func(p int) {
		if p > 0 {
			progressed = true
		}
	})
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if services.IsCancelled(err) {
		t.Fatalf("expected a dropped connection not to count as cancellation: %v", err)
	}
	if !progressed {
		t.Fatal("expected part of the body to arrive before the drop")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file removed, stat err %v", statErr)
	}
}

func TestDownloadRejectsEmptyURL(t *testing.T) {
	_, err := fetch.New(fetch.Options{}).Download(context.Background(), "  ", filepath.Join(t.TempDir(), "x.mp3"), fetch.Range{}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTempPathIsUnique(t *testing.T) {
	a := fetch.TempPath("/tmp", 9, "diarization")
	b := fetch.TempPath("/tmp", 9, "diarization")
	if a == b {
		t.Fatal("expected unique temp paths")
	}
	if !strings.HasPrefix(filepath.Base(a), "diarization-9-") || filepath.Ext(a) != ".mp3" {
		t.Fatalf("unexpected temp path %q", a)
	}
}
