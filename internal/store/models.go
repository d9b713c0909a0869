package store

import (
	"strings"
	"time"
)

// Stage names one of the two pipelines.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageDiarization   Stage = "diarization"
)

// TranscriptionStatus represents the lifecycle of an episode's transcription.
type TranscriptionStatus string

const (
	TranscriptionNotStarted   TranscriptionStatus = "not_started"
	TranscriptionQueued       TranscriptionStatus = "queued"
	TranscriptionDownloading  TranscriptionStatus = "downloading"
	TranscriptionTranscribing TranscriptionStatus = "transcribing"
	TranscriptionDone         TranscriptionStatus = "done"
	TranscriptionError        TranscriptionStatus = "error"
)

// DiarizationStatus represents the lifecycle of an episode's diarization.
type DiarizationStatus string

const (
	DiarizationNotStarted DiarizationStatus = "not_started"
	DiarizationQueued     DiarizationStatus = "queued"
	DiarizationProcessing DiarizationStatus = "processing"
	DiarizationDone       DiarizationStatus = "done"
	DiarizationSolo       DiarizationStatus = "solo"
	DiarizationError      DiarizationStatus = "error"
)

var transcriptionStatuses = map[TranscriptionStatus]struct{}{
	TranscriptionNotStarted:   {},
	TranscriptionQueued:       {},
	TranscriptionDownloading:  {},
	TranscriptionTranscribing: {},
	TranscriptionDone:         {},
	TranscriptionError:        {},
}

var diarizationStatuses = map[DiarizationStatus]struct{}{
	DiarizationNotStarted: {},
	DiarizationQueued:     {},
	DiarizationProcessing: {},
	DiarizationDone:       {},
	DiarizationSolo:       {},
	DiarizationError:      {},
}

// ParseTranscriptionStatus converts a string into a TranscriptionStatus.
func ParseTranscriptionStatus(value string) (TranscriptionStatus, bool) {
	status := TranscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := transcriptionStatuses[status]
	return status, ok
}

// ParseDiarizationStatus converts a string into a DiarizationStatus.
func ParseDiarizationStatus(value string) (DiarizationStatus, bool) {
	status := DiarizationStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := diarizationStatuses[status]
	return status, ok
}

// InFlight reports whether the status belongs to a job that is queued or running.
func (s TranscriptionStatus) InFlight() bool {
	switch s {
	case TranscriptionQueued, TranscriptionDownloading, TranscriptionTranscribing:
		return true
	default:
		return false
	}
}

// InFlight reports whether the status belongs to a job that is queued or running.
func (s DiarizationStatus) InFlight() bool {
	return s == DiarizationQueued || s == DiarizationProcessing
}

// Terminal reports whether the diarization finished, successfully or not.
func (s DiarizationStatus) Terminal() bool {
	return s == DiarizationDone || s == DiarizationSolo || s == DiarizationError
}

// Episode is the pipeline's view of a podcast episode.
type Episode struct {
	ID                  int64
	PodcastID           int64
	Title               string
	AudioURL            string
	DurationMS          int64
	TranscriptionStatus TranscriptionStatus
	TranscriptionError  string
	DiarizationStatus   DiarizationStatus
	DiarizationError    string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TranscriptSegment is one timed span of recognized text.
type TranscriptSegment struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// Transcript is the stored result of a transcription run.
type Transcript struct {
	EpisodeID int64
	FullText  string
	Segments  []TranscriptSegment
	Model     string
	Language  string
	CreatedAt time.Time
}

// DiarizationSegment is one labeled speaker turn.
type DiarizationSegment struct {
	EpisodeID    int64
	StartMS      int64
	EndMS        int64
	SpeakerLabel string
	Confidence   float64
}

// InFlightReset summarizes the rows touched by startup reconciliation.
type InFlightReset struct {
	Transcription int64
	Diarization   int64
}
