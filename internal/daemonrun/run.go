package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"binky/internal/config"
	"binky/internal/daemon"
	"binky/internal/diarization"
	"binky/internal/ipc"
	"binky/internal/logging"
	"binky/internal/models"
	"binky/internal/notifications"
	"binky/internal/pipeline"
	"binky/internal/preflight"
	"binky/internal/services/sherpa"
	"binky/internal/services/whisper"
	"binky/internal/store"
	"binky/internal/transcription"
)

const (
	eventBufferSize = 4096
	shutdownTimeout = 30 * time.Second
)

var errStopRequested = errors.New("stop requested over IPC")

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when non-empty.
	LogLevel string
}

// Run starts the binky daemon and blocks until SIGINT, SIGTERM, or an IPC
// stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, closer, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()

	logRuntimeSnapshot(signalCtx, logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open episode store", logging.Error(err))
		return err
	}
	defer st.Close()

	events := pipeline.NewBroadcaster(eventBufferSize)
	notifier := notifications.NewSink(cfg, notifications.NewService(cfg), episodeTitle(st), logging.NewComponentLogger(logger, "notifications"))
	defer notifier.Wait()

	pipe, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Store:  st,
		Logger: logger,
		Sink: pipeline.MultiSink{
			pipeline.NewLogSink(logging.NewComponentLogger(logger, "events")),
			events,
			notifier,
		},
		Resolver:        models.NewResolver(cfg),
		LoadTranscriber: whisperLoader(cfg),
		LoadDiarizer:    sherpaLoader(cfg),
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	d, err := daemon.New(cfg, st, pipe, events, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the running instance or remove a stale lock"),
		)
		return err
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		d.Stop(shutdownCtx)
	}()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		if err := d.ServeMetrics(groupCtx); err != nil {
			logging.WarnWithContext(logger, "metrics server unavailable", "metrics_server_failed",
				logging.Error(err),
				logging.String("bind", cfg.Metrics.Bind),
				logging.String(logging.FieldImpact, "/metrics and /healthz are not served"),
				logging.String(logging.FieldErrorHint, "change metrics.bind or set it empty to disable"),
			)
		}
		return nil
	})
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-d.Done():
			return errStopRequested
		}
	})

	if err := group.Wait(); err != nil && !errors.Is(err, errStopRequested) {
		return err
	}
	logger.Info("binky daemon shutting down")
	return nil
}

func whisperLoader(cfg *config.Config) pipeline.TranscriberLoader {
	return func(model models.Whisper) (transcription.Model, error) {
		loaded, err := whisper.Load(whisper.Config{
			ModelPath: model.Path,
			Name:      model.Name,
			Threads:   cfg.Transcription.Threads,
		})
		if err != nil {
			return nil, err
		}
		return loaded, nil
	}
}

func sherpaLoader(cfg *config.Config) pipeline.DiarizerLoader {
	return func(paths models.Diarization) (diarization.Engine, error) {
		engine, err := sherpa.New(sherpa.Config{
			SegmentationModel: paths.Segmentation,
			EmbeddingModel:    paths.Embedding,
			NumClusters:       cfg.Diarization.NumClusters,
			Threshold:         cfg.Diarization.ClusterThreshold,
			MinDurationOn:     cfg.Diarization.MinDurationOn,
			MinDurationOff:    cfg.Diarization.MinDurationOff,
			Threads:           cfg.Diarization.Threads,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

func episodeTitle(st *store.Store) notifications.TitleLookup {
	return func(ctx context.Context, episodeID int64) (string, error) {
		episode, err := st.GetEpisode(ctx, episodeID)
		if err != nil || episode == nil {
			return "", err
		}
		return episode.Title, nil
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logRuntimeSnapshot records model availability and any failed readiness
// checks so a broken setup is visible before the first job runs.
func logRuntimeSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	resolver := models.NewResolver(cfg)
	whisperModel, whisperErr := resolver.WhisperModel()
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("models_dir", resolver.Dir()),
		logging.Bool("whisper_available", whisperErr == nil),
		logging.String("whisper_model", whisperModel.Name),
		logging.Bool("diarization_enabled", cfg.Diarization.Enabled),
		logging.Bool("diarization_ready", resolver.DiarizationReady()),
		logging.Bool("auto_diarize", cfg.Pipeline.AutoDiarize),
		logging.Int("max_concurrent_inference", cfg.Pipeline.MaxConcurrentInference),
		logging.String("default_language", cfg.Transcription.DefaultLanguage),
	)
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
		)
	}
}
