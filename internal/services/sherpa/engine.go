package sherpa

import (
	"fmt"
	"os"
	"strings"

	onnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"binky/internal/diarization"
	"binky/internal/services"
)

// Config captures the sherpa-onnx offline speaker diarization settings.
type Config struct {
	SegmentationModel string
	EmbeddingModel    string
	// NumClusters fixes the speaker count. Zero clusters by Threshold instead.
	NumClusters    int
	Threshold      float64
	MinDurationOn  float64
	MinDurationOff float64
	Threads        int
}

// Engine wraps a sherpa-onnx OfflineSpeakerDiarization and implements
// diarization.Engine.
type Engine struct {
	sd *onnx.OfflineSpeakerDiarization
}

// New loads both models. The caller must Close the engine.
func New(cfg Config) (*Engine, error) {
	for _, path := range []string{cfg.SegmentationModel, cfg.EmbeddingModel} {
		if strings.TrimSpace(path) == "" {
			return nil, services.Wrap(services.ErrModel, "diarization", "load models", "model path is empty", nil)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, services.Wrap(services.ErrModel, "diarization", "load models", path, err)
		}
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}

	config := onnx.OfflineSpeakerDiarizationConfig{}
	config.Segmentation.Pyannote.Model = cfg.SegmentationModel
	config.Segmentation.NumThreads = threads
	config.Embedding.Model = cfg.EmbeddingModel
	config.Embedding.NumThreads = threads
	config.Clustering.NumClusters = cfg.NumClusters
	config.Clustering.Threshold = float32(cfg.Threshold)
	config.MinDurationOn = float32(cfg.MinDurationOn)
	config.MinDurationOff = float32(cfg.MinDurationOff)

	sd := onnx.NewOfflineSpeakerDiarization(&config)
	if sd == nil {
		return nil, services.Wrap(services.ErrModel, "diarization", "load models",
			fmt.Sprintf("sherpa-onnx rejected segmentation=%s embedding=%s", cfg.SegmentationModel, cfg.EmbeddingModel), nil)
	}
	return &Engine{sd: sd}, nil
}

// SampleRate returns the rate the models expect.
func (e *Engine) SampleRate() int {
	return e.sd.SampleRate()
}

// Diarize runs segmentation, embedding, and clustering over samples.
func (e *Engine) Diarize(samples []float32) ([]diarization.RawSegment, error) {
	if e.sd == nil {
		return nil, fmt.Errorf("diarization engine closed")
	}
	if len(samples) == 0 {
		return nil, nil
	}
	result := e.sd.Process(samples)
	raw := make([]diarization.RawSegment, 0, len(result))
	for _, seg := range result {
		raw = append(raw, diarization.RawSegment{
			Start:   float64(seg.Start),
			End:     float64(seg.End),
			Speaker: seg.Speaker,
		})
	}
	return raw, nil
}

// Close releases the native diarization pipeline.
func (e *Engine) Close() error {
	if e == nil || e.sd == nil {
		return nil
	}
	onnx.DeleteOfflineSpeakerDiarization(e.sd)
	e.sd = nil
	return nil
}
