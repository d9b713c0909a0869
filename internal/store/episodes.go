package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NewEpisode carries the fields supplied when registering an episode.
type NewEpisode struct {
	PodcastID  int64
	Title      string
	AudioURL   string
	DurationMS int64
}

// AddEpisode inserts an episode with both stages not started.
func (s *Store) AddEpisode(ctx context.Context, in NewEpisode) (*Episode, error) {
	ctx = ensureContext(ctx)
	audioURL := strings.TrimSpace(in.AudioURL)
	if audioURL == "" {
		return nil, errors.New("audio url is required")
	}
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO episodes (podcast_id, title, audio_url, duration_ms, transcription_status, diarization_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt(in.PodcastID), strings.TrimSpace(in.Title), audioURL, nullableInt(in.DurationMS),
		TranscriptionNotStarted, DiarizationNotStarted, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("episode id: %w", err)
	}
	return s.GetEpisode(ctx, id)
}

// GetEpisode fetches an episode by identifier. It returns nil when absent.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// ListEpisodes returns episodes ordered by id. A non-positive limit returns all rows.
func (s *Store) ListEpisodes(ctx context.Context, limit int) ([]*Episode, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + episodeColumns + ` FROM episodes ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEpisodes(ctx, query, args...)
}

// EligibleEpisodes lists episodes that may be started for the stage: transcription
// needs an audio url and a not_started or error status, diarization additionally
// needs a finished transcript.
func (s *Store) EligibleEpisodes(ctx context.Context, stage Stage) ([]*Episode, error) {
	ctx = ensureContext(ctx)
	switch stage {
	case StageTranscription:
		return s.queryEpisodes(ctx,
			`SELECT `+episodeColumns+` FROM episodes
             WHERE audio_url <> '' AND transcription_status IN (?, ?) ORDER BY id`,
			TranscriptionNotStarted, TranscriptionError)
	case StageDiarization:
		return s.queryEpisodes(ctx,
			`SELECT `+episodeColumns+` FROM episodes
             WHERE audio_url <> '' AND transcription_status = ? AND diarization_status IN (?, ?) ORDER BY id`,
			TranscriptionDone, DiarizationNotStarted, DiarizationError)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// SetEpisodeDuration records the probed audio duration when the catalog did
// not supply one.
func (s *Store) SetEpisodeDuration(ctx context.Context, id int64, durationMS int64) error {
	ctx = ensureContext(ctx)
	if durationMS <= 0 {
		return nil
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE episodes SET duration_ms = ?, updated_at = ? WHERE id = ? AND (duration_ms IS NULL OR duration_ms = 0)`,
		durationMS, nowString(), id)
	if err != nil {
		return fmt.Errorf("set duration for episode %d: %w", id, err)
	}
	return nil
}

func (s *Store) queryEpisodes(ctx context.Context, query string, args ...any) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}
