package store

import (
	"context"
	"fmt"
	"strings"
)

const unknownErrorText = "unknown error"

// SetTranscriptionStatus writes the transcription status. The error text is
// stored only for the error status and cleared otherwise.
func (s *Store) SetTranscriptionStatus(ctx context.Context, id int64, status TranscriptionStatus, errText string) error {
	if _, ok := transcriptionStatuses[status]; !ok {
		return fmt.Errorf("invalid transcription status %q", status)
	}
	return s.setStatus(ctx, "transcription", id, string(status), errorColumn(status == TranscriptionError, errText))
}

// SetDiarizationStatus writes the diarization status with the same error rules.
func (s *Store) SetDiarizationStatus(ctx context.Context, id int64, status DiarizationStatus, errText string) error {
	if _, ok := diarizationStatuses[status]; !ok {
		return fmt.Errorf("invalid diarization status %q", status)
	}
	return s.setStatus(ctx, "diarization", id, string(status), errorColumn(status == DiarizationError, errText))
}

func errorColumn(isError bool, errText string) any {
	if !isError {
		return nil
	}
	errText = strings.TrimSpace(errText)
	if errText == "" {
		return unknownErrorText
	}
	return errText
}

func (s *Store) setStatus(ctx context.Context, prefix string, id int64, status string, errValue any) error {
	query := fmt.Sprintf(`UPDATE episodes SET %[1]s_status = ?, %[1]s_error = ?, updated_at = ? WHERE id = ?`, prefix)
	res, err := s.execWithRetry(ctx, query, status, errValue, nowString(), id)
	if err != nil {
		return fmt.Errorf("set %s status: %w", prefix, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s status: %w", prefix, err)
	}
	if affected == 0 {
		return fmt.Errorf("set %s status for episode %d: %w", prefix, id, ErrEpisodeNotFound)
	}
	return nil
}

// ResetInFlight moves every queued or running status back to not_started. It
// is called once at startup because jobs are not persisted across restarts.
func (s *Store) ResetInFlight(ctx context.Context) (InFlightReset, error) {
	ctx = ensureContext(ctx)
	var summary InFlightReset
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := nowString()
		res, err := tx.ExecContext(ctx,
			`UPDATE episodes SET transcription_status = ?, transcription_error = NULL, updated_at = ?
             WHERE transcription_status IN (?, ?, ?)`,
			TranscriptionNotStarted, now, TranscriptionQueued, TranscriptionDownloading, TranscriptionTranscribing)
		if err != nil {
			return err
		}
		transcription, err := res.RowsAffected()
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE episodes SET diarization_status = ?, diarization_error = NULL, updated_at = ?
             WHERE diarization_status IN (?, ?)`,
			DiarizationNotStarted, now, DiarizationQueued, DiarizationProcessing)
		if err != nil {
			return err
		}
		diarization, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		summary = InFlightReset{Transcription: transcription, Diarization: diarization}
		return nil
	})
	if err != nil {
		return InFlightReset{}, fmt.Errorf("reset in-flight statuses: %w", err)
	}
	return summary, nil
}

// StatusCounts groups episode counts by status for each stage.
type StatusCounts struct {
	Transcription map[TranscriptionStatus]int
	Diarization   map[DiarizationStatus]int
}

// Stats returns a count of episodes grouped by status for both stages.
func (s *Store) Stats(ctx context.Context) (StatusCounts, error) {
	ctx = ensureContext(ctx)
	counts := StatusCounts{
		Transcription: make(map[TranscriptionStatus]int),
		Diarization:   make(map[DiarizationStatus]int),
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transcription_status, diarization_status, COUNT(1) FROM episodes
         GROUP BY transcription_status, diarization_status`)
	if err != nil {
		return counts, fmt.Errorf("episode stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			transcription TranscriptionStatus
			diarization   DiarizationStatus
			count         int
		)
		if err := rows.Scan(&transcription, &diarization, &count); err != nil {
			return counts, err
		}
		counts.Transcription[transcription] += count
		counts.Diarization[diarization] += count
	}
	return counts, rows.Err()
}
