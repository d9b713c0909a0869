package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertTranscript stores the transcript, replacing any prior row for the episode.
func (s *Store) UpsertTranscript(ctx context.Context, transcript Transcript) error {
	ctx = ensureContext(ctx)
	segments := transcript.Segments
	if segments == nil {
		segments = []TranscriptSegment{}
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode transcript segments: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO transcripts (episode_id, full_text, segments_json, model, language, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(episode_id) DO UPDATE SET
             full_text = excluded.full_text,
             segments_json = excluded.segments_json,
             model = excluded.model,
             language = excluded.language,
             created_at = excluded.created_at`,
		transcript.EpisodeID, transcript.FullText, string(encoded), transcript.Model,
		nullableString(transcript.Language), nowString(),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// GetTranscript returns the stored transcript, or nil when none exists.
func (s *Store) GetTranscript(ctx context.Context, episodeID int64) (*Transcript, error) {
	ctx = ensureContext(ctx)
	var (
		fullText     string
		segmentsJSON string
		model        string
		language     sql.NullString
		createdRaw   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT full_text, segments_json, model, language, created_at FROM transcripts WHERE episode_id = ?`,
		episodeID,
	).Scan(&fullText, &segmentsJSON, &model, &language, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}

	transcript := &Transcript{
		EpisodeID: episodeID,
		FullText:  fullText,
		Model:     model,
		Language:  language.String,
	}
	if err := json.Unmarshal([]byte(segmentsJSON), &transcript.Segments); err != nil {
		return nil, fmt.Errorf("decode transcript segments: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		transcript.CreatedAt = created
	}
	return transcript, nil
}

// ReplaceDiarizationSegments deletes the episode's segments and inserts the new
// set in one transaction.
func (s *Store) ReplaceDiarizationSegments(ctx context.Context, episodeID int64, segments []DiarizationSegment) error {
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM diarization_segments WHERE episode_id = ?`, episodeID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO diarization_segments (episode_id, start_ms, end_ms, speaker_label, confidence)
             VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx, episodeID, seg.StartMS, seg.EndMS, seg.SpeakerLabel, seg.Confidence); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("replace diarization segments: %w", err)
	}
	return nil
}

// DiarizationSegments returns the stored segments ordered by start time.
func (s *Store) DiarizationSegments(ctx context.Context, episodeID int64) ([]DiarizationSegment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, speaker_label, confidence FROM diarization_segments
         WHERE episode_id = ? ORDER BY start_ms, id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list diarization segments: %w", err)
	}
	defer rows.Close()

	var segments []DiarizationSegment
	for rows.Next() {
		var (
			seg        DiarizationSegment
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&seg.StartMS, &seg.EndMS, &seg.SpeakerLabel, &confidence); err != nil {
			return nil, fmt.Errorf("scan diarization segment: %w", err)
		}
		seg.EpisodeID = episodeID
		seg.Confidence = confidence.Float64
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
