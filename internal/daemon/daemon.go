package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"binky/internal/config"
	"binky/internal/language"
	"binky/internal/logging"
	"binky/internal/models"
	"binky/internal/pipeline"
	"binky/internal/queue"
	"binky/internal/services"
	"binky/internal/store"
)

const (
	defaultEventLimit = 200
	// maxEventWait bounds a long-poll so IPC clients never hang on a quiet
	// pipeline.
	maxEventWait = 25 * time.Second
)

// Daemon coordinates the pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *pipeline.Pipeline
	resolver *models.Resolver
	events   *pipeline.Broadcaster

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	DatabasePath  string
	LockFilePath  string
	ModelsDir     string
	Language      string
	Transcription queue.Status
	Diarization   queue.Status
	Counts        store.StatusCounts
	Models        []models.Status
}

// New constructs a daemon with initialized dependencies. events may be nil
// when no subscriber needs the event stream.
func New(cfg *config.Config, st *store.Store, pipe *pipeline.Pipeline, events *pipeline.Broadcaster, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || pipe == nil {
		return nil, errors.New("daemon requires config, store, and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		pipeline: pipe,
		resolver: models.NewResolver(cfg),
		events:   events,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		done:     make(chan struct{}),
	}, nil
}

// Start acquires the daemon lock and resets episodes whose jobs were lost
// with a previous process. The pipeline must not receive work before Start
// returns.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another binky daemon instance is already running")
	}

	reset, err := d.store.ResetInFlight(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reconcile in-flight episodes: %w", err)
	}
	if reset.Transcription > 0 || reset.Diarization > 0 {
		logging.WarnWithContext(d.logger, "reset episodes interrupted by previous shutdown", "startup_reconciled",
			logging.Int64("transcription", reset.Transcription),
			logging.Int64("diarization", reset.Diarization),
			logging.String(logging.FieldImpact, "episodes return to not_started and must be resubmitted"),
		)
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("binky daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// Stop drains the pipeline and releases the daemon lock. Running jobs are
// cancelled and their episodes return to not_started.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	if err := d.pipeline.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "pipeline did not drain before shutdown deadline", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight episodes are reset on next start"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("binky daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.Stop(shutdownCtx)
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestStop asks the process hosting the daemon to shut down.
func (d *Daemon) RequestStop() {
	d.stopOnce.Do(func() {
		d.logger.Info("daemon stop requested")
		close(d.done)
	})
}

// Done is closed once RequestStop has been called.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		ModelsDir:     d.resolver.Dir(),
		Transcription: d.pipeline.TranscriptionStatus(),
		Diarization:   d.pipeline.DiarizationStatus(),
		Models:        d.resolver.Status(),
	}
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("episode stats unavailable", logging.Error(err))
	}
	status.Counts = counts
	if lang, err := d.Language(ctx); err == nil {
		status.Language = lang
	}
	return status
}

// Transcribe queues a transcription job.
func (d *Daemon) Transcribe(ctx context.Context, episodeID int64) error {
	return d.pipeline.StartTranscription(ctx, episodeID)
}

// TranscribeAll queues every episode that is ready for transcription.
func (d *Daemon) TranscribeAll(ctx context.Context) (pipeline.BatchResult, error) {
	return d.pipeline.StartAll(ctx, store.StageTranscription)
}

// CancelTranscription cancels the running transcription job, if any.
func (d *Daemon) CancelTranscription() bool {
	return d.pipeline.CancelTranscription()
}

// Diarize queues a diarization job.
func (d *Daemon) Diarize(ctx context.Context, episodeID int64) error {
	return d.pipeline.StartDiarization(ctx, episodeID)
}

// DiarizeAll queues every transcribed episode that still needs speakers.
func (d *Daemon) DiarizeAll(ctx context.Context) (pipeline.BatchResult, error) {
	return d.pipeline.StartAll(ctx, store.StageDiarization)
}

// CancelDiarization cancels the running diarization job, if any.
func (d *Daemon) CancelDiarization() bool {
	return d.pipeline.CancelDiarization()
}

// QueueStatus returns both stage queues.
func (d *Daemon) QueueStatus() (transcription, diarization queue.Status) {
	return d.pipeline.TranscriptionStatus(), d.pipeline.DiarizationStatus()
}

// Episodes lists registered episodes.
func (d *Daemon) Episodes(ctx context.Context, limit int) ([]*store.Episode, error) {
	return d.store.ListEpisodes(ctx, limit)
}

// AddEpisode registers an episode with both stages not started.
func (d *Daemon) AddEpisode(ctx context.Context, in store.NewEpisode) (*store.Episode, error) {
	if strings.TrimSpace(in.AudioURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add episode", "audio url is required", nil)
	}
	episode, err := d.store.AddEpisode(ctx, in)
	if err != nil {
		return nil, err
	}
	d.logger.Info("episode registered",
		logging.Int64(logging.FieldEpisodeID, episode.ID),
		logging.String("title", episode.Title),
	)
	return episode, nil
}

// Episode returns one episode, or a not-found error.
func (d *Daemon) Episode(ctx context.Context, episodeID int64) (*store.Episode, error) {
	episode, err := d.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if episode == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "episode", fmt.Sprintf("episode %d not found", episodeID), nil)
	}
	return episode, nil
}

// Transcript returns the stored transcript for an episode.
func (d *Daemon) Transcript(ctx context.Context, episodeID int64) (*store.Transcript, error) {
	transcript, err := d.store.GetTranscript(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "transcript", fmt.Sprintf("episode %d has no transcript", episodeID), nil)
	}
	return transcript, nil
}

// Segments returns the stored diarization segments for an episode.
func (d *Daemon) Segments(ctx context.Context, episodeID int64) ([]store.DiarizationSegment, error) {
	if _, err := d.Episode(ctx, episodeID); err != nil {
		return nil, err
	}
	return d.store.DiarizationSegments(ctx, episodeID)
}

// Models reports model availability.
func (d *Daemon) Models() []models.Status {
	return d.resolver.Status()
}

// Events returns events after since. With wait set it blocks until an event
// arrives, the context ends, or maxEventWait passes.
func (d *Daemon) Events(ctx context.Context, since uint64, limit int, wait bool) ([]pipeline.Event, uint64, error) {
	if d.events == nil {
		return nil, since, nil
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxEventWait)
		defer cancel()
	}
	events, next, err := d.events.Fetch(ctx, since, limit, wait)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return events, next, nil
	}
	return events, next, err
}

// Language returns the stored transcription language preference.
func (d *Daemon) Language(ctx context.Context) (string, error) {
	fallback := d.cfg.Transcription.DefaultLanguage
	value, err := d.store.Setting(ctx, store.LanguageSettingKey, fallback)
	if err != nil {
		return "", err
	}
	return language.NormalizeOr(value, fallback), nil
}

// SetLanguage stores a new transcription language preference. It accepts
// ISO codes, language names, and "auto".
func (d *Daemon) SetLanguage(ctx context.Context, value string) (string, error) {
	code, ok := language.Normalize(value)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "daemon", "set language",
			fmt.Sprintf("unknown language %q", strings.TrimSpace(value)), nil)
	}
	if err := d.store.SetSetting(ctx, store.LanguageSettingKey, code); err != nil {
		return "", err
	}
	d.logger.Info("transcription language updated",
		logging.String("language", code),
		logging.String(logging.FieldEventType, "language_changed"),
	)
	return code, nil
}

// Healthy reports whether the store answers queries.
func (d *Daemon) Healthy(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return d.store.Ping(ctx)
}
