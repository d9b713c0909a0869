package pipeline

import (
	"context"
	"errors"
	"os"

	"binky/internal/audio"
	"binky/internal/fetch"
	"binky/internal/logging"
	"binky/internal/metrics"
	"binky/internal/queue"
	"binky/internal/services"
)

// fetchAudio downloads the job's audio to a fresh temp file, probes it, and
// returns the path with a cleanup func that removes the file. Cleanup runs on
// every exit path, including the error paths here.
func (p *Pipeline) fetchAudio(ctx context.Context, stage string, job queue.Job, span fetch.Range, onProgress func(int)) (string, func(), error) {
	dest := fetch.TempPath(p.cfg.Paths.TempDir, job.EpisodeID, stage)
	cleanup := func() {
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "temp audio cleanup failed", "temp_cleanup_failed",
				logging.String("path", dest),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temp directory keeps a stale download"),
			)
		}
	}

	result, err := p.downloader.Download(ctx, job.AudioURL, dest, span, onProgress)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	metrics.RecordDownload(stage, result.Bytes)

	info, err := audio.Probe(result.Path)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	logging.WithContext(ctx, p.logger).Debug("audio probed",
		logging.String(logging.FieldEventType, "audio_probed"),
		logging.Int64("bytes", result.Bytes),
		logging.Int("sample_rate", info.SampleRate),
		logging.Int("channels", info.Channels),
		logging.Duration("duration", info.Duration),
	)
	if err := p.store.SetEpisodeDuration(context.WithoutCancel(ctx), job.EpisodeID, info.DurationMS()); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "recording episode duration failed", "duration_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "episode duration stays unknown"),
		)
	}
	return result.Path, cleanup, nil
}

// decodeAudio decodes and removes the temp file. The caller must hold an
// inference slot since the decoded buffer dominates peak memory.
func decodeAudio(ctx context.Context, path string, rate int, cleanup func()) ([]float32, error) {
	samples, err := audio.DecodeFile(ctx, path, rate)
	cleanup()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, services.Wrap(services.ErrDecode, "decode", "decode", "audio produced no samples", audio.ErrNoSamples)
	}
	return samples, nil
}

// interrupted reports whether a stage stopped because of cancellation rather
// than a genuine failure.
func interrupted(ctx context.Context, err error) bool {
	return services.IsCancelled(err) || ctx.Err() != nil
}
