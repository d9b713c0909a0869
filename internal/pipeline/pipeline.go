package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"binky/internal/config"
	"binky/internal/diarization"
	"binky/internal/fetch"
	"binky/internal/logging"
	"binky/internal/metrics"
	"binky/internal/models"
	"binky/internal/queue"
	"binky/internal/services"
	"binky/internal/store"
	"binky/internal/transcription"
)

const (
	stageTranscription = string(store.StageTranscription)
	stageDiarization   = string(store.StageDiarization)
)

var (
	// ErrAlreadyQueued reports that the episode is already queued or running
	// for the stage.
	ErrAlreadyQueued = errors.New("episode already queued")
	// ErrClosed reports that the pipeline has shut down.
	ErrClosed = errors.New("pipeline is shut down")
)

// TranscriberLoader loads a speech-to-text model for one job.
type TranscriberLoader func(models.Whisper) (transcription.Model, error)

// DiarizerLoader loads a diarization engine for one job.
type DiarizerLoader func(models.Diarization) (diarization.Engine, error)

// Options wires a Pipeline's collaborators.
type Options struct {
	Config          *config.Config
	Store           *store.Store
	Logger          *slog.Logger
	Sink            Sink
	Downloader      *fetch.Downloader
	Resolver        *models.Resolver
	LoadTranscriber TranscriberLoader
	LoadDiarizer    DiarizerLoader
}

// Pipeline runs the two stage loops.
type Pipeline struct {
	cfg             *config.Config
	store           *store.Store
	logger          *slog.Logger
	sink            Sink
	downloader      *fetch.Downloader
	resolver        *models.Resolver
	loadTranscriber TranscriberLoader
	loadDiarizer    DiarizerLoader
	inference       *semaphore.Weighted

	transcription *queue.Worker
	diarization   *queue.Worker

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New constructs a Pipeline. Config and Store are required.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "config is required", nil)
	}
	if opts.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "store is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NewLogSink(logger)
	}
	downloader := opts.Downloader
	if downloader == nil {
		downloader = fetch.NewFromConfig(opts.Config, logging.NewComponentLogger(logger, "fetch"))
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = models.NewResolver(opts.Config)
	}
	slots := opts.Config.Pipeline.MaxConcurrentInference
	if slots <= 0 {
		slots = 1
	}

	baseCtx, stop := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:             opts.Config,
		store:           opts.Store,
		logger:          logger,
		sink:            sink,
		downloader:      downloader,
		resolver:        resolver,
		loadTranscriber: opts.LoadTranscriber,
		loadDiarizer:    opts.LoadDiarizer,
		inference:       semaphore.NewWeighted(int64(slots)),
		baseCtx:         baseCtx,
		stop:            stop,
	}
	p.transcription = &queue.Worker{
		Stage:   stageTranscription,
		Queue:   queue.New(),
		Handle:  p.runTranscription,
		OnPanic: p.transcriptionPanicked,
		Logger:  logging.NewComponentLogger(logger, "transcription"),
	}
	p.diarization = &queue.Worker{
		Stage:   stageDiarization,
		Queue:   queue.New(),
		Handle:  p.runDiarization,
		OnPanic: p.diarizationPanicked,
		Logger:  logging.NewComponentLogger(logger, "diarization"),
	}
	return p, nil
}

// StartTranscription validates and enqueues a transcription job.
func (p *Pipeline) StartTranscription(ctx context.Context, episodeID int64) error {
	episode, err := p.loadEpisode(ctx, stageTranscription, episodeID)
	if err != nil {
		return err
	}
	if _, err := p.resolver.WhisperModel(); err != nil {
		return services.Wrap(services.ErrModel, stageTranscription, "start", "", err)
	}
	return p.submit(ctx, p.transcription, episode, func(ctx context.Context) error {
		return p.store.SetTranscriptionStatus(ctx, episode.ID, store.TranscriptionQueued, "")
	})
}

// CancelTranscription cancels the running transcription job. It returns
// false when no job is active; queued jobs are untouched.
func (p *Pipeline) CancelTranscription() bool {
	return p.cancel(p.transcription)
}

// TranscriptionStatus returns the transcription queue snapshot.
func (p *Pipeline) TranscriptionStatus() queue.Status {
	return p.transcription.Queue.Snapshot()
}

// StartDiarization validates and enqueues a diarization job.
func (p *Pipeline) StartDiarization(ctx context.Context, episodeID int64) error {
	if !p.cfg.Diarization.Enabled {
		return services.Wrap(services.ErrConfiguration, stageDiarization, "start", "diarization is disabled in the configuration", nil)
	}
	episode, err := p.loadEpisode(ctx, stageDiarization, episodeID)
	if err != nil {
		return err
	}
	if _, err := p.resolver.DiarizationModels(); err != nil {
		return services.Wrap(services.ErrModel, stageDiarization, "start", "", err)
	}
	return p.submit(ctx, p.diarization, episode, func(ctx context.Context) error {
		return p.store.SetDiarizationStatus(ctx, episode.ID, store.DiarizationQueued, "")
	})
}

// CancelDiarization cancels the running diarization job.
func (p *Pipeline) CancelDiarization() bool {
	return p.cancel(p.diarization)
}

// DiarizationStatus returns the diarization queue snapshot.
func (p *Pipeline) DiarizationStatus() queue.Status {
	return p.diarization.Queue.Snapshot()
}

// BatchResult summarizes a StartAll call.
type BatchResult struct {
	Queued  []int64
	Skipped []int64
}

// StartAll enqueues every eligible episode for the stage in id order.
// Episodes already queued or running are skipped. The first other failure
// stops the batch and is returned with what was queued so far.
func (p *Pipeline) StartAll(ctx context.Context, stage store.Stage) (BatchResult, error) {
	var start func(context.Context, int64) error
	switch stage {
	case store.StageTranscription:
		start = p.StartTranscription
	case store.StageDiarization:
		if !p.cfg.Diarization.Enabled {
			return BatchResult{}, services.Wrap(services.ErrConfiguration, stageDiarization, "start all", "diarization is disabled in the configuration", nil)
		}
		start = p.StartDiarization
	default:
		return BatchResult{}, services.Wrap(services.ErrValidation, "pipeline", "start all", fmt.Sprintf("unknown stage %q", stage), nil)
	}
	episodes, err := p.store.EligibleEpisodes(ctx, stage)
	if err != nil {
		return BatchResult{}, services.Wrap(services.ErrIO, string(stage), "list eligible", "", err)
	}

	var result BatchResult
	for _, episode := range episodes {
		err := start(ctx, episode.ID)
		switch {
		case err == nil:
			result.Queued = append(result.Queued, episode.ID)
		case errors.Is(err, ErrAlreadyQueued):
			result.Skipped = append(result.Skipped, episode.ID)
		default:
			return result, err
		}
	}
	logging.WithContext(ctx, p.logger).Info("batch queued",
		logging.String(logging.FieldEventType, "batch_queued"),
		logging.String(logging.FieldStage, string(stage)),
		logging.Int("queued", len(result.Queued)),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// Shutdown stops accepting work, cancels the active and queued jobs, and
// waits for both loops to drain or ctx to end. Drained jobs reset their
// episodes to not_started.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stop()
	done := make(chan struct{})
	go func() {
		p.transcription.Wait()
		p.diarization.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) loadEpisode(ctx context.Context, stage string, episodeID int64) (*store.Episode, error) {
	episode, err := p.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stage, "load episode", "", err)
	}
	if episode == nil {
		return nil, services.Wrap(services.ErrNotFound, stage, "load episode", fmt.Sprintf("episode %d does not exist", episodeID), nil)
	}
	if episode.AudioURL == "" {
		return nil, services.Wrap(services.ErrValidation, stage, "load episode", fmt.Sprintf("episode %d has no audio url", episodeID), nil)
	}
	return episode, nil
}

func (p *Pipeline) submit(ctx context.Context, worker *queue.Worker, episode *store.Episode, markQueued func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if worker.Queue.Contains(episode.ID) {
		return services.Wrap(services.ErrValidation, worker.Stage, "start", fmt.Sprintf("episode %d", episode.ID), ErrAlreadyQueued)
	}
	if err := markQueued(ctx); err != nil {
		return services.Wrap(services.ErrIO, worker.Stage, "mark queued", "", err)
	}
	job := queue.NewJob(episode.ID, episode.AudioURL)
	started := worker.Submit(p.baseCtx, job)
	logging.WithContext(services.WithEpisodeID(ctx, episode.ID), worker.Logger).Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Bool("loop_started", started),
	)
	p.publishQueue(worker)
	return nil
}

func (p *Pipeline) cancel(worker *queue.Worker) bool {
	episodeID, ok := worker.Queue.CancelActive()
	if ok {
		worker.Logger.Info("cancel requested",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.String(logging.FieldEventType, "cancel_requested"),
		)
	}
	p.publishQueue(worker)
	return ok
}

// settle releases the job's active slot before its terminal event goes out,
// so a client reacting to the event can resubmit the episode at once.
func (p *Pipeline) settle(worker *queue.Worker, episodeID int64) {
	worker.Queue.Finish(episodeID)
	p.publishQueue(worker)
}

// resetCancelled settles a cancelled job and runs reset unless the episode
// was queued again after the cancel. Holding p.mu orders the check against
// submit, so a resubmitted episode keeps its queued status.
func (p *Pipeline) resetCancelled(worker *queue.Worker, episodeID int64, reset func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	worker.Queue.Finish(episodeID)
	if worker.Queue.Contains(episodeID) {
		worker.Logger.Debug("cancelled job requeued, keeping queued status",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.String(logging.FieldEventType, "cancel_requeued"),
		)
		return nil
	}
	return reset()
}

func (p *Pipeline) publishQueue(worker *queue.Worker) {
	snapshot := worker.Queue.Snapshot()
	metrics.SetQueue(worker.Stage, snapshot.QueueLength, snapshot.HasActive())
}

// acquireInference blocks until an inference slot is free. The returned
// release func is safe to call more than once.
func (p *Pipeline) acquireInference(ctx context.Context) (func(), error) {
	if err := p.inference.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	metrics.InferenceSlotsInUse.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.InferenceSlotsInUse.Dec()
			p.inference.Release(1)
		})
	}, nil
}

func (p *Pipeline) emit(evt Event) {
	if p.sink != nil {
		p.sink.Emit(evt)
	}
}

// failureMessage renders err for the episode's error column.
func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	var missing *models.MissingError
	if errors.As(err, &missing) {
		return missing.Message
	}
	return err.Error()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
