package store

import (
	"database/sql"
	"errors"
	"time"
)

const episodeColumns = "id, podcast_id, title, audio_url, duration_ms, transcription_status, transcription_error, diarization_status, diarization_error, created_at, updated_at"

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id                 int64
		podcastID          sql.NullInt64
		title              string
		audioURL           string
		durationMS         sql.NullInt64
		transcriptionRaw   string
		transcriptionError sql.NullString
		diarizationRaw     string
		diarizationError   sql.NullString
		createdRaw         sql.NullString
		updatedRaw         sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&podcastID,
		&title,
		&audioURL,
		&durationMS,
		&transcriptionRaw,
		&transcriptionError,
		&diarizationRaw,
		&diarizationError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	episode := &Episode{
		ID:                  id,
		PodcastID:           podcastID.Int64,
		Title:               title,
		AudioURL:            audioURL,
		DurationMS:          durationMS.Int64,
		TranscriptionStatus: TranscriptionStatus(transcriptionRaw),
		TranscriptionError:  transcriptionError.String,
		DiarizationStatus:   DiarizationStatus(diarizationRaw),
		DiarizationError:    diarizationError.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		episode.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		episode.UpdatedAt = updated
	}
	return episode, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
