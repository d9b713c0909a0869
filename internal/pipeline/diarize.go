package pipeline

import (
	"context"
	"time"

	"binky/internal/diarization"
	"binky/internal/fetch"
	"binky/internal/logging"
	"binky/internal/metrics"
	"binky/internal/queue"
	"binky/internal/services"
	"binky/internal/store"
)

// Diarization job progress: download fills 0-30, the single inference pass
// moves it to 95, persistence finishes the job.
var (
	diarizationDownloadRange = fetch.Range{Lo: 0, Hi: 30}
	diarizationInferenceDone = 95
)

func (p *Pipeline) runDiarization(ctx context.Context, job queue.Job) error {
	started := time.Now()
	solo, err := p.diarize(ctx, job)
	p.finishDiarization(ctx, job, solo, err, started)
	return err
}

func (p *Pipeline) diarize(ctx context.Context, job queue.Job) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	logger := logging.WithContext(ctx, p.logger)
	persist := context.WithoutCancel(ctx)

	if err := p.store.SetDiarizationStatus(persist, job.EpisodeID, store.DiarizationProcessing, ""); err != nil {
		return false, services.Wrap(services.ErrIO, stageDiarization, "set status", "processing", err)
	}
	paths, err := p.resolver.DiarizationModels()
	if err != nil {
		return false, services.Wrap(services.ErrModel, stageDiarization, "resolve models", "", err)
	}

	path, cleanup, err := p.fetchAudio(ctx, stageDiarization, job, diarizationDownloadRange, func(pct int) {
		p.emit(progressEvent(stageDiarization, job.EpisodeID, pct))
	})
	defer cleanup()
	if err != nil {
		return false, err
	}

	release, err := p.acquireInference(ctx)
	defer release()
	if err != nil {
		return false, err
	}
	if p.loadDiarizer == nil {
		return false, services.Wrap(services.ErrConfiguration, stageDiarization, "load models", "no diarization backend configured", nil)
	}
	engine, err := p.loadDiarizer(paths)
	if err != nil {
		return false, services.Wrap(services.ErrModel, stageDiarization, "load models", "", err)
	}
	defer engine.Close()

	samples, err := decodeAudio(ctx, path, engine.SampleRate(), cleanup)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.emit(progressEvent(stageDiarization, job.EpisodeID, diarizationDownloadRange.Hi))

	driver := diarization.NewDriver(engine, p.cfg.Diarization.SoloThreshold, logging.NewComponentLogger(p.logger, "sherpa"))
	result, err := driver.Run(ctx, samples)
	release()
	if err != nil {
		return false, err
	}
	// The pass itself cannot be interrupted; a cancel that landed meanwhile
	// discards its output.
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.emit(progressEvent(stageDiarization, job.EpisodeID, diarizationInferenceDone))

	rows := make([]store.DiarizationSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		rows = append(rows, store.DiarizationSegment{
			EpisodeID:    job.EpisodeID,
			StartMS:      seg.StartMS,
			EndMS:        seg.EndMS,
			SpeakerLabel: seg.SpeakerLabel,
			Confidence:   seg.Confidence,
		})
	}
	if err := p.store.ReplaceDiarizationSegments(persist, job.EpisodeID, rows); err != nil {
		return false, services.Wrap(services.ErrIO, stageDiarization, "save segments", "", err)
	}
	status := store.DiarizationDone
	if result.Solo {
		status = store.DiarizationSolo
	}
	if err := p.store.SetDiarizationStatus(persist, job.EpisodeID, status, ""); err != nil {
		return false, services.Wrap(services.ErrIO, stageDiarization, "set status", string(status), err)
	}
	logger.Info("diarization completed",
		logging.String(logging.FieldEventType, "diarization_completed"),
		logging.Int("segments", len(rows)),
		logging.Int("speakers", result.Speakers),
		logging.Bool("solo", result.Solo),
	)
	return result.Solo, nil
}

func (p *Pipeline) finishDiarization(ctx context.Context, job queue.Job, solo bool, err error, started time.Time) {
	logger := logging.WithContext(ctx, p.logger)
	persist := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		p.settle(p.diarization, job.EpisodeID)
		p.emit(doneEvent(stageDiarization, job.EpisodeID, &solo))
		outcome := metrics.OutcomeDone
		if solo {
			outcome = metrics.OutcomeSolo
		}
		metrics.RecordOutcome(stageDiarization, outcome, time.Since(started))
	case interrupted(ctx, err):
		reset := func() error {
			return p.store.SetDiarizationStatus(persist, job.EpisodeID, store.DiarizationNotStarted, "")
		}
		if setErr := p.resetCancelled(p.diarization, job.EpisodeID, reset); setErr != nil {
			logger.Error("reset cancelled diarization failed", logging.Error(setErr))
		}
		p.emit(cancelledEvent(stageDiarization, job.EpisodeID))
		metrics.RecordOutcome(stageDiarization, metrics.OutcomeCancelled, time.Since(started))
		logger.Info("diarization cancelled", logging.String(logging.FieldEventType, "diarization_cancelled"))
	default:
		p.failDiarization(persist, job, err)
		metrics.RecordOutcome(stageDiarization, metrics.OutcomeError, time.Since(started))
	}
	p.publishQueue(p.diarization)
}

func (p *Pipeline) failDiarization(ctx context.Context, job queue.Job, err error) {
	message := failureMessage(err)
	if setErr := p.store.SetDiarizationStatus(ctx, job.EpisodeID, store.DiarizationError, message); setErr != nil {
		logging.WithContext(ctx, p.logger).Error("persist diarization failure failed", logging.Error(setErr))
	}
	p.settle(p.diarization, job.EpisodeID)
	p.emit(errorEvent(stageDiarization, job.EpisodeID, message))
	metrics.RecordError(stageDiarization, services.Kind(err))
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "diarization failed", "diarization_failed",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
	)
}

func (p *Pipeline) diarizationPanicked(ctx context.Context, job queue.Job, err error) {
	p.failDiarization(ctx, job, err)
	p.publishQueue(p.diarization)
}
