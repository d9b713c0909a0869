package diarization

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"binky/internal/logging"
	"binky/internal/services"
)

const (
	stageName = "diarization"
	// DefaultSoloThreshold is the share of segmented time below which the
	// quietest speaker is treated as misclassified noise.
	DefaultSoloThreshold = 0.05
)

// RawSegment is an engine result in seconds with a zero-based speaker index.
type RawSegment struct {
	Start   float64
	End     float64
	Speaker int
}

// Engine performs one global diarization pass.
type Engine interface {
	SampleRate() int
	Diarize(samples []float32) ([]RawSegment, error)
	Close() error
}

// Segment is a labeled speaker turn in milliseconds.
type Segment struct {
	StartMS      int64   `json:"start_ms"`
	EndMS        int64   `json:"end_ms"`
	SpeakerLabel string  `json:"speaker_label"`
	Confidence   float64 `json:"confidence"`
}

// Result bundles the labeled segments with the solo classification.
type Result struct {
	Segments []Segment
	Speakers int
	Solo     bool
}

// Driver converts engine output into labeled segments.
type Driver struct {
	engine        Engine
	soloThreshold float64
	logger        *slog.Logger
}

// NewDriver returns a Driver. A threshold outside (0, 0.5] falls back to
// DefaultSoloThreshold.
func NewDriver(engine Engine, soloThreshold float64, logger *slog.Logger) *Driver {
	if soloThreshold <= 0 || soloThreshold > 0.5 {
		soloThreshold = DefaultSoloThreshold
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{engine: engine, soloThreshold: soloThreshold, logger: logger}
}

// Run diarizes the whole buffer in a single pass; clustering needs global
// context so the audio is never chunked.
func (d *Driver) Run(ctx context.Context, samples []float32) (Result, error) {
	if d.engine == nil {
		return Result{}, services.Wrap(services.ErrModel, stageName, "run", "no engine loaded", nil)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{Solo: true}, nil
	}

	raw, err := d.engine.Diarize(samples)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInference, stageName, "diarize", "", err)
	}
	segments := Convert(raw)
	result := Result{
		Segments: segments,
		Speakers: countSpeakers(segments),
		Solo:     DetectSolo(segments, d.soloThreshold),
	}
	logging.WithContext(ctx, d.logger).Debug("diarization pass complete",
		logging.Int("segments", len(segments)),
		logging.Int("speakers", result.Speakers),
		logging.Bool("solo", result.Solo),
	)
	return result, nil
}

// Convert maps raw engine output to millisecond segments ordered by start.
func Convert(raw []RawSegment) []Segment {
	segments := make([]Segment, 0, len(raw))
	for _, r := range raw {
		start := int64(math.Round(r.Start * 1000))
		end := int64(math.Round(r.End * 1000))
		if end < start {
			end = start
		}
		segments = append(segments, Segment{
			StartMS:      start,
			EndMS:        end,
			SpeakerLabel: SpeakerLabel(r.Speaker),
			Confidence:   1.0,
		})
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartMS < segments[j].StartMS
	})
	return segments
}

// SpeakerLabel formats a zero-based speaker index.
func SpeakerLabel(index int) string {
	return fmt.Sprintf("SPEAKER_%d", index)
}

// DetectSolo reports whether the segments describe a single effective
// speaker: at most one distinct label, or a quietest speaker holding less
// than threshold of the total segmented time.
func DetectSolo(segments []Segment, threshold float64) bool {
	totals := SpeakerTotals(segments)
	if len(totals) <= 1 {
		return true
	}
	var (
		sum      int64
		quietest int64 = math.MaxInt64
	)
	for _, total := range totals {
		sum += total
		if total < quietest {
			quietest = total
		}
	}
	if sum == 0 {
		return true
	}
	return float64(quietest) < threshold*float64(sum)
}

// SpeakerTotals sums speaking time per label in milliseconds.
func SpeakerTotals(segments []Segment) map[string]int64 {
	totals := make(map[string]int64)
	for _, seg := range segments {
		totals[seg.SpeakerLabel] += seg.EndMS - seg.StartMS
	}
	return totals
}

func countSpeakers(segments []Segment) int {
	return len(SpeakerTotals(segments))
}
