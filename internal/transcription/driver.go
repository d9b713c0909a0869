package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"binky/internal/logging"
	"binky/internal/services"
)

const stageName = "transcription"

// Options configures a Driver.
type Options struct {
	SampleRate    int
	WindowSamples int
	// ProgressBase and ProgressSpan place inference progress inside the
	// overall job percentage, e.g. 50 and 50 for the upper half.
	ProgressBase int
	ProgressSpan int
	Logger       *slog.Logger
}

// Driver splits audio into fixed windows and transcribes each with a fresh
// session.
type Driver struct {
	model Model
	opts  Options
}

// NewDriver returns a Driver for model.
func NewDriver(model Model, opts Options) *Driver {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.WindowSamples <= 0 {
		opts.WindowSamples = 300 * opts.SampleRate
	}
	if opts.ProgressSpan < 0 {
		opts.ProgressSpan = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Driver{model: model, opts: opts}
}

// Run transcribes samples window by window. ctx is checked before each window
// and never mid-window. updates may be nil; sends never block.
func (d *Driver) Run(ctx context.Context, samples []float32, language string, updates chan<- Update) (Result, error) {
	if d.model == nil {
		return Result{}, services.Wrap(services.ErrModel, stageName, "run", "no model loaded", nil)
	}
	result := Result{Model: d.model.Name(), Language: language}
	total := len(samples)
	if total == 0 {
		return result, nil
	}

	window := d.opts.WindowSamples
	windows := (total + window - 1) / window
	durationMS := d.samplesToMS(total)
	reporter := &progressReporter{updates: updates, last: -1}
	logger := logging.WithContext(ctx, d.opts.Logger)

	var (
		texts   []string
		prevEnd int64
	)
	for i := 0; i < windows; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := i * window
		end := start + window
		if end > total {
			end = total
		}

		index := i
		segments, err := d.transcribeWindow(samples[start:end], language, func(native int) {
			reporter.report(d.percent(index, native, windows))
		})
		if err != nil {
			return Result{}, services.Wrap(services.ErrInference, stageName, "transcribe window",
				fmt.Sprintf("window %d of %d", i+1, windows), err)
		}

		offsetMS := d.samplesToMS(start)
		for _, seg := range segments {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			startMS := clamp(offsetMS+seg.Start.Milliseconds(), prevEnd, durationMS)
			endMS := clamp(offsetMS+seg.End.Milliseconds(), startMS, durationMS)
			prevEnd = endMS

			out := Segment{Text: text, StartMS: startMS, EndMS: endMS}
			result.Segments = append(result.Segments, out)
			texts = append(texts, text)
			reporter.send(Update{Kind: UpdateSegment, Segment: out})
		}
		reporter.report(d.percent(i+1, 0, windows))
		logger.Debug("transcription window complete",
			logging.Int("window", i+1),
			logging.Int("windows", windows),
			logging.Int("segments", len(segments)),
		)
	}

	result.Text = strings.Join(texts, " ")
	return result, nil
}

func (d *Driver) transcribeWindow(samples []float32, language string, progress func(int)) ([]WindowSegment, error) {
	session, err := d.model.NewSession()
	if err != nil {
		return nil, services.Wrap(services.ErrModel, stageName, "new session", "", err)
	}
	if closer, ok := session.(io.Closer); ok {
		defer closer.Close()
	}
	return session.Transcribe(samples, language, progress)
}

// percent maps windows completed plus the native percentage of the current
// window onto the configured progress range.
func (d *Driver) percent(done, native, windows int) int {
	if native < 0 {
		native = 0
	}
	if native > 100 {
		native = 100
	}
	if windows <= 0 {
		return d.opts.ProgressBase + d.opts.ProgressSpan
	}
	return d.opts.ProgressBase + (done*100+native)*d.opts.ProgressSpan/(windows*100)
}

func (d *Driver) samplesToMS(n int) int64 {
	return int64(n) * 1000 / int64(d.opts.SampleRate)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// progressReporter forwards updates without blocking and drops repeated
// percentages. report may be called from a native callback thread.
type progressReporter struct {
	mu      sync.Mutex
	updates chan<- Update
	last    int
}

func (r *progressReporter) report(percent int) {
	r.mu.Lock()
	if percent <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = percent
	r.mu.Unlock()
	r.send(Update{Kind: UpdateProgress, Percent: percent})
}

func (r *progressReporter) send(update Update) {
	if r.updates == nil {
		return
	}
	select {
	case r.updates <- update:
	default:
	}
}
