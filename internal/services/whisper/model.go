package whisper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"binky/internal/services"
	"binky/internal/transcription"
)

// SampleRate is the PCM rate whisper expects.
const SampleRate = whisperlib.SampleRate

// Model wraps a loaded whisper.cpp model and implements transcription.Model.
type Model struct {
	model   whisperlib.Model
	name    string
	threads uint
}

// Load reads the model file into memory. The caller must Close the model.
func Load(cfg Config) (*Model, error) {
	path := strings.TrimSpace(cfg.ModelPath)
	if path == "" {
		return nil, services.Wrap(services.ErrModel, "transcription", "load model", "model path is empty", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrModel, "transcription", "load model", path, err)
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, services.Wrap(services.ErrModel, "transcription", "load model", path, err)
	}
	m := &Model{model: model, name: strings.TrimSpace(cfg.Name)}
	if cfg.Threads > 0 {
		m.threads = uint(cfg.Threads)
	}
	return m, nil
}

// Name returns the model identifier recorded with transcripts.
func (m *Model) Name() string {
	return m.name
}

// NewSession creates a fresh whisper context for one window.
func (m *Model) NewSession() (transcription.Session, error) {
	ctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new whisper context: %w", err)
	}
	return &session{ctx: ctx, multilingual: m.model.IsMultilingual(), threads: m.threads}, nil
}

// Close releases the model.
func (m *Model) Close() error {
	if m == nil || m.model == nil {
		return nil
	}
	return m.model.Close()
}

type session struct {
	ctx          whisperlib.Context
	multilingual bool
	threads      uint
}

func (s *session) Transcribe(samples []float32, language string, progress func(int)) ([]transcription.WindowSegment, error) {
	if s.multilingual {
		language = strings.TrimSpace(language)
		if language == "" {
			language = autoLanguage
		}
		if err := s.ctx.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("set language %q: %w", language, err)
		}
	}
	if s.threads > 0 {
		s.ctx.SetThreads(s.threads)
	}

	var onProgress whisperlib.ProgressCallback
	if progress != nil {
		onProgress = func(p int) { progress(p) }
	}
	if err := s.ctx.Process(samples, nil, nil, onProgress); err != nil {
		return nil, err
	}

	var segments []transcription.WindowSegment
	for {
		seg, err := s.ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segments = append(segments, transcription.WindowSegment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	return segments, nil
}
