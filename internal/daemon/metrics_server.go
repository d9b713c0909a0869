package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"binky/internal/logging"
)

type metricsServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	server *http.Server
}

func newMetricsServer(bind string, d *Daemon, logger *slog.Logger) *metricsServer {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil
	}
	srv := &metricsServer{bind: bind, logger: logger, daemon: d}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// ServeMetrics exposes /metrics and /healthz on the configured bind address
// until ctx ends. It returns immediately when metrics.bind is empty.
func (d *Daemon) ServeMetrics(ctx context.Context) error {
	srv := newMetricsServer(d.cfg.Metrics.Bind, d, logging.NewComponentLogger(d.logger, "metrics-server"))
	if srv == nil {
		return nil
	}
	listener, err := net.Listen("tcp", srv.bind)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	return srv.serve(ctx, listener)
}

func (s *metricsServer) serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.log().Info("metrics server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	}
}

func (s *metricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.daemon.Healthy(ctx); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	transcription, diarization := s.daemon.QueueStatus()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"transcription": transcription,
		"diarization":   diarization,
	})
}

func (s *metricsServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *metricsServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
