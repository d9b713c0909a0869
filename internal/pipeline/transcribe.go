package pipeline

import (
	"context"
	"time"

	"binky/internal/audio"
	"binky/internal/fetch"
	"binky/internal/language"
	"binky/internal/logging"
	"binky/internal/metrics"
	"binky/internal/queue"
	"binky/internal/services"
	"binky/internal/store"
	"binky/internal/transcription"
)

const transcriptionUpdateBuffer = 256

// Transcription job progress: download fills 0-50, inference 50-100.
var (
	transcriptionDownloadRange = fetch.Range{Lo: 0, Hi: 50}
	transcriptionInferenceBase = 50
	transcriptionInferenceSpan = 50
)

func (p *Pipeline) runTranscription(ctx context.Context, job queue.Job) error {
	started := time.Now()
	err := p.transcribe(ctx, job)
	p.finishTranscription(ctx, job, err, started)
	return err
}

func (p *Pipeline) transcribe(ctx context.Context, job queue.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, p.logger)
	persist := context.WithoutCancel(ctx)

	if err := p.store.SetTranscriptionStatus(persist, job.EpisodeID, store.TranscriptionDownloading, ""); err != nil {
		return services.Wrap(services.ErrIO, stageTranscription, "set status", "downloading", err)
	}
	model, err := p.resolver.WhisperModel()
	if err != nil {
		return services.Wrap(services.ErrModel, stageTranscription, "resolve model", "", err)
	}

	path, cleanup, err := p.fetchAudio(ctx, stageTranscription, job, transcriptionDownloadRange, func(pct int) {
		p.emit(downloadingEvent(stageTranscription, job.EpisodeID, pct))
	})
	defer cleanup()
	if err != nil {
		return err
	}

	release, err := p.acquireInference(ctx)
	defer release()
	if err != nil {
		return err
	}
	samples, err := decodeAudio(ctx, path, audio.TargetSampleRate, cleanup)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.store.SetTranscriptionStatus(persist, job.EpisodeID, store.TranscriptionTranscribing, ""); err != nil {
		return services.Wrap(services.ErrIO, stageTranscription, "set status", "transcribing", err)
	}
	p.emit(progressEvent(stageTranscription, job.EpisodeID, transcriptionInferenceBase))

	if p.loadTranscriber == nil {
		return services.Wrap(services.ErrConfiguration, stageTranscription, "load model", "no transcription backend configured", nil)
	}
	backend, err := p.loadTranscriber(model)
	if err != nil {
		return services.Wrap(services.ErrModel, stageTranscription, "load model", model.Name, err)
	}
	defer backend.Close()

	lang := p.language(ctx)
	logger.Info("transcription started",
		logging.String(logging.FieldEventType, "transcription_started"),
		logging.String("model", model.Name),
		logging.String("language", lang),
		logging.Duration("audio", time.Duration(len(samples))*time.Second/audio.TargetSampleRate),
	)

	driver := transcription.NewDriver(countingModel{backend}, transcription.Options{
		SampleRate:    audio.TargetSampleRate,
		WindowSamples: p.cfg.WindowSamples(audio.TargetSampleRate),
		ProgressBase:  transcriptionInferenceBase,
		ProgressSpan:  transcriptionInferenceSpan,
		Logger:        logging.NewComponentLogger(p.logger, "whisper"),
	})
	updates := make(chan transcription.Update, transcriptionUpdateBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		p.forwardTranscriptionUpdates(job.EpisodeID, updates)
	}()
	result, err := driver.Run(ctx, samples, lang, updates)
	close(updates)
	<-drained
	release()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	segments := make([]store.TranscriptSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, store.TranscriptSegment{Text: seg.Text, StartMS: seg.StartMS, EndMS: seg.EndMS})
	}
	if err := p.store.UpsertTranscript(persist, store.Transcript{
		EpisodeID: job.EpisodeID,
		FullText:  result.Text,
		Segments:  segments,
		Model:     result.Model,
		Language:  result.Language,
	}); err != nil {
		return services.Wrap(services.ErrIO, stageTranscription, "save transcript", "", err)
	}
	if err := p.store.SetTranscriptionStatus(persist, job.EpisodeID, store.TranscriptionDone, ""); err != nil {
		return services.Wrap(services.ErrIO, stageTranscription, "set status", "done", err)
	}
	logger.Info("transcription completed",
		logging.String(logging.FieldEventType, "transcription_completed"),
		logging.Int("segments", len(segments)),
	)
	return nil
}

func (p *Pipeline) forwardTranscriptionUpdates(episodeID int64, updates <-chan transcription.Update) {
	for update := range updates {
		switch update.Kind {
		case transcription.UpdateProgress:
			p.emit(progressEvent(stageTranscription, episodeID, update.Percent))
		case transcription.UpdateSegment:
			if p.cfg.Transcription.SegmentEvents {
				p.emit(segmentEvent(stageTranscription, episodeID, update.Segment.Text, update.Segment.StartMS, update.Segment.EndMS))
			}
		}
	}
}

func (p *Pipeline) finishTranscription(ctx context.Context, job queue.Job, err error, started time.Time) {
	logger := logging.WithContext(ctx, p.logger)
	persist := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		metrics.RecordOutcome(stageTranscription, metrics.OutcomeDone, time.Since(started))
		p.chainDiarization(persist, job.EpisodeID)
		p.settle(p.transcription, job.EpisodeID)
		p.emit(doneEvent(stageTranscription, job.EpisodeID, nil))
	case interrupted(ctx, err):
		reset := func() error {
			return p.store.SetTranscriptionStatus(persist, job.EpisodeID, store.TranscriptionNotStarted, "")
		}
		if setErr := p.resetCancelled(p.transcription, job.EpisodeID, reset); setErr != nil {
			logger.Error("reset cancelled transcription failed", logging.Error(setErr))
		}
		p.emit(cancelledEvent(stageTranscription, job.EpisodeID))
		metrics.RecordOutcome(stageTranscription, metrics.OutcomeCancelled, time.Since(started))
		logger.Info("transcription cancelled", logging.String(logging.FieldEventType, "transcription_cancelled"))
	default:
		p.failTranscription(persist, job, err)
		metrics.RecordOutcome(stageTranscription, metrics.OutcomeError, time.Since(started))
	}
	p.publishQueue(p.transcription)
}

func (p *Pipeline) failTranscription(ctx context.Context, job queue.Job, err error) {
	message := failureMessage(err)
	if setErr := p.store.SetTranscriptionStatus(ctx, job.EpisodeID, store.TranscriptionError, message); setErr != nil {
		logging.WithContext(ctx, p.logger).Error("persist transcription failure failed", logging.Error(setErr))
	}
	p.settle(p.transcription, job.EpisodeID)
	p.emit(errorEvent(stageTranscription, job.EpisodeID, message))
	metrics.RecordError(stageTranscription, services.Kind(err))
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "transcription failed", "transcription_failed",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
	)
}

func (p *Pipeline) transcriptionPanicked(ctx context.Context, job queue.Job, err error) {
	p.failTranscription(ctx, job, err)
	p.publishQueue(p.transcription)
}

// chainDiarization queues diarization after a successful transcription. A
// missing model or disabled stage skips chaining without an error.
func (p *Pipeline) chainDiarization(ctx context.Context, episodeID int64) {
	logger := logging.WithContext(ctx, p.logger)
	if !p.cfg.Pipeline.AutoDiarize || !p.resolver.DiarizationReady() {
		logger.Debug("diarization chaining skipped",
			logging.String(logging.FieldEventType, "chain_skipped"),
			logging.Bool("auto_diarize", p.cfg.Pipeline.AutoDiarize),
		)
		return
	}
	if err := p.StartDiarization(ctx, episodeID); err != nil {
		logger.Debug("diarization chaining not queued",
			logging.String(logging.FieldEventType, "chain_skipped"),
			logging.Error(err),
		)
	}
}

// language resolves the stored preference, falling back to the configured
// default.
func (p *Pipeline) language(ctx context.Context) string {
	fallback := p.cfg.Transcription.DefaultLanguage
	value, err := p.store.Setting(context.WithoutCancel(ctx), store.LanguageSettingKey, fallback)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "language setting unavailable", "settings_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "using configured default language"),
		)
		value = fallback
	}
	return language.NormalizeOr(value, fallback)
}

// countingModel records a window metric for every session handed out.
type countingModel struct {
	transcription.Model
}

func (m countingModel) NewSession() (transcription.Session, error) {
	session, err := m.Model.NewSession()
	if err == nil {
		metrics.RecordWindow()
	}
	return session, err
}
