package transcription

import "time"

// WindowSegment is a span of recognized text relative to the start of the
// window it was produced from.
type WindowSegment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Model is a loaded speech-to-text model. It hands out one Session per window.
type Model interface {
	Name() string
	NewSession() (Session, error)
	Close() error
}

// Session transcribes a single window. Sessions are never reused; callers
// drop them after one Transcribe call. progress receives native 0-100
// percentages and may be invoked from a foreign thread.
type Session interface {
	Transcribe(samples []float32, language string, progress func(int)) ([]WindowSegment, error)
}

// Segment is a recognized span on the episode timeline.
type Segment struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// Result is the outcome of a complete transcription run.
type Result struct {
	Text     string
	Segments []Segment
	Model    string
	Language string
}

// UpdateKind distinguishes the messages posted while a run is in progress.
type UpdateKind int

const (
	UpdateProgress UpdateKind = iota
	UpdateSegment
)

// Update is posted to the caller's channel during Run.
type Update struct {
	Kind    UpdateKind
	Percent int
	Segment Segment
}
