package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"binky/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Metrics are disabled and the socket lives under the temp tree.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.ModelsDir = filepath.Join(base, "models")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.Socket = filepath.Join(base, "binky.sock")
	cfgVal.Metrics.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWindowSeconds overrides the transcription window length.
func WithWindowSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.WindowSeconds = seconds
	}
}

// WithoutDiarization disables diarization and chaining.
func WithoutDiarization() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Diarization.Enabled = false
	}
}

// WithWhisperModel writes a placeholder ggml model file and selects it.
func WithWhisperModel(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.Model = name
		WriteFile(b.t, filepath.Join(b.cfg.Paths.ModelsDir, "ggml-"+name+".bin"), 16)
	}
}

// WithDiarizationModels writes placeholder segmentation and embedding models.
func WithDiarizationModels() ConfigOption {
	return func(b *configBuilder) {
		root := filepath.Join(b.cfg.Paths.ModelsDir, "diarization")
		WriteFile(b.t, filepath.Join(root, "segmentation", "model.onnx"), 16)
		WriteFile(b.t, filepath.Join(root, "embedding", "speaker.onnx"), 16)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// TempFiles lists the files currently present in the temp directory.
func TempFiles(t testing.TB, cfg *config.Config) []string {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.TempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read temp dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
