package ipc

import (
	"time"

	"binky/internal/models"
	"binky/internal/pipeline"
	"binky/internal/queue"
	"binky/internal/store"
)

// QueueStatus mirrors a stage queue snapshot.
type QueueStatus = queue.Status

// ModelStatus describes availability of a model file.
type ModelStatus = models.Status

// Event is one pipeline event as delivered to pollers.
type Event = pipeline.Event

// Episode is the wire view of an episode row.
type Episode struct {
	ID                  int64     `json:"id"`
	PodcastID           int64     `json:"podcast_id,omitempty"`
	Title               string    `json:"title"`
	AudioURL            string    `json:"audio_url"`
	DurationMS          int64     `json:"duration_ms,omitempty"`
	TranscriptionStatus string    `json:"transcription_status"`
	TranscriptionError  string    `json:"transcription_error,omitempty"`
	DiarizationStatus   string    `json:"diarization_status"`
	DiarizationError    string    `json:"diarization_error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// FromEpisode converts a store episode to its wire form.
func FromEpisode(e *store.Episode) Episode {
	if e == nil {
		return Episode{}
	}
	return Episode{
		ID:                  e.ID,
		PodcastID:           e.PodcastID,
		Title:               e.Title,
		AudioURL:            e.AudioURL,
		DurationMS:          e.DurationMS,
		TranscriptionStatus: string(e.TranscriptionStatus),
		TranscriptionError:  e.TranscriptionError,
		DiarizationStatus:   string(e.DiarizationStatus),
		DiarizationError:    e.DiarizationError,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	DatabasePath  string         `json:"database_path"`
	LockPath      string         `json:"lock_path"`
	ModelsDir     string         `json:"models_dir"`
	Language      string         `json:"language"`
	Transcription QueueStatus    `json:"transcription"`
	Diarization   QueueStatus    `json:"diarization"`
	Counts        map[string]int `json:"counts"`
	Models        []ModelStatus  `json:"models"`
}

// StopRequest asks the daemon process to exit.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// EpisodeRequest targets a single episode.
type EpisodeRequest struct {
	EpisodeID int64 `json:"episode_id"`
}

// EnqueueResponse acknowledges a queued job.
type EnqueueResponse struct {
	Queued      bool        `json:"queued"`
	EpisodeID   int64       `json:"episode_id"`
	QueueStatus QueueStatus `json:"queue_status"`
}

// BatchRequest queues every eligible episode for one stage.
type BatchRequest struct{}

// BatchResponse lists the episodes a batch queued and skipped.
type BatchResponse struct {
	Queued      []int64     `json:"queued"`
	Skipped     []int64     `json:"skipped,omitempty"`
	QueueStatus QueueStatus `json:"queue_status"`
}

// CancelRequest cancels the running job of one stage.
type CancelRequest struct{}

// CancelResponse reports whether a job was running.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// QueueStatusRequest fetches both queue snapshots.
type QueueStatusRequest struct{}

// QueueStatusResponse reports both stage queues.
type QueueStatusResponse struct {
	Transcription QueueStatus `json:"transcription"`
	Diarization   QueueStatus `json:"diarization"`
}

// EpisodesRequest lists episodes. A non-positive limit returns all.
type EpisodesRequest struct {
	Limit int `json:"limit"`
}

// EpisodesResponse contains episode rows.
type EpisodesResponse struct {
	Episodes []Episode `json:"episodes"`
}

// AddEpisodeRequest registers a new episode.
type AddEpisodeRequest struct {
	PodcastID  int64  `json:"podcast_id,omitempty"`
	Title      string `json:"title"`
	AudioURL   string `json:"audio_url"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// AddEpisodeResponse returns the stored episode.
type AddEpisodeResponse struct {
	Episode Episode `json:"episode"`
}

// TranscriptSegment is one timed span of text.
type TranscriptSegment = store.TranscriptSegment

// TranscriptResponse carries a stored transcript.
type TranscriptResponse struct {
	EpisodeID int64               `json:"episode_id"`
	Language  string              `json:"language"`
	Model     string              `json:"model"`
	FullText  string              `json:"full_text"`
	Segments  []TranscriptSegment `json:"segments"`
	CreatedAt time.Time           `json:"created_at"`
}

// SpeakerSegment is one labeled speaker turn.
type SpeakerSegment struct {
	StartMS      int64   `json:"start_ms"`
	EndMS        int64   `json:"end_ms"`
	SpeakerLabel string  `json:"speaker_label"`
	Confidence   float64 `json:"confidence"`
}

// SegmentsResponse carries stored diarization segments.
type SegmentsResponse struct {
	EpisodeID         int64            `json:"episode_id"`
	DiarizationStatus string           `json:"diarization_status"`
	Segments          []SpeakerSegment `json:"segments"`
}

// ModelsRequest fetches model availability.
type ModelsRequest struct{}

// ModelsResponse lists model requirements.
type ModelsResponse struct {
	Models []ModelStatus `json:"models"`
}

// EventsRequest polls the event stream. Since is the cursor returned by the
// previous call; Wait blocks until a new event arrives or the server's poll
// window passes.
type EventsRequest struct {
	Since uint64 `json:"since"`
	Limit int    `json:"limit"`
	Wait  bool   `json:"wait"`
}

// EventsResponse contains events and the next cursor.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// LanguageRequest reads or, when Value is set, writes the language setting.
type LanguageRequest struct {
	Value string `json:"value,omitempty"`
}

// LanguageResponse reports the effective language setting.
type LanguageResponse struct {
	Language    string `json:"language"`
	DisplayName string `json:"display_name"`
}
