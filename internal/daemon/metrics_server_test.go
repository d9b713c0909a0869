package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binky/internal/metrics"
	"binky/internal/pipeline"
	"binky/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithoutDiarization())
	st := testsupport.MustOpenStore(t, cfg)
	pipe, err := pipeline.New(pipeline.Options{Config: cfg, Store: st})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	d, err := New(cfg, st, pipe, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })
	return d
}

func TestNewMetricsServerDisabledWithoutBind(t *testing.T) {
	d := newTestDaemon(t)
	if srv := newMetricsServer("  ", d, nil); srv != nil {
		t.Fatal("expected nil server for empty bind")
	}
	if err := d.ServeMetrics(context.Background()); err != nil {
		t.Fatalf("expected disabled metrics to return nil, got %v", err)
	}
}

func TestHealthzReflectsDaemonState(t *testing.T) {
	d := newTestDaemon(t)
	srv := newMetricsServer("127.0.0.1:0", d, nil)

	w := httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", w.Code)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w = httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}

	w = httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestMetricsEndpointServesCollectors(t *testing.T) {
	d := newTestDaemon(t)
	srv := newMetricsServer("127.0.0.1:0", d, nil)
	metrics.RecordWindow()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "binky_inference_windows_total") {
		t.Fatalf("expected binky collectors in output")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}
