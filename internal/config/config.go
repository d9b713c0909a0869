package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	TempDir   string `toml:"temp_dir"`
	ModelsDir string `toml:"models_dir"`
	LogDir    string `toml:"log_dir"`
	Socket    string `toml:"socket"`
}

// Transcription contains speech-to-text settings.
type Transcription struct {
	// Model is the whisper model name (ggml-<model>.bin). Empty selects the
	// first model found in the models directory.
	Model           string `toml:"model"`
	WindowSeconds   int    `toml:"window_seconds"`
	Threads         int    `toml:"threads"`
	DefaultLanguage string `toml:"default_language"`
	SegmentEvents   bool   `toml:"segment_events"`
}

// Diarization contains speaker diarization settings.
type Diarization struct {
	Enabled bool `toml:"enabled"`
	// NumClusters fixes the expected speaker count. Zero switches to
	// threshold based clustering using ClusterThreshold.
	NumClusters      int     `toml:"num_clusters"`
	ClusterThreshold float64 `toml:"cluster_threshold"`
	// SoloThreshold is the share of segmented time below which the quietest
	// speaker is treated as noise.
	SoloThreshold  float64 `toml:"solo_threshold"`
	MinDurationOn  float64 `toml:"min_duration_on"`
	MinDurationOff float64 `toml:"min_duration_off"`
	Threads        int     `toml:"threads"`
}

// Acquisition contains audio download settings.
type Acquisition struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ChunkSize      int    `toml:"chunk_size"`
	UserAgent      string `toml:"user_agent"`
}

// Pipeline contains orchestration settings shared by both stages.
type Pipeline struct {
	MaxConcurrentInference int  `toml:"max_concurrent_inference"`
	AutoDiarize            bool `toml:"auto_diarize"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Metrics contains the Prometheus endpoint configuration.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications contains ntfy delivery settings. An empty topic disables
// notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyTranscription   bool   `toml:"notify_transcription"`
	NotifyDiarization     bool   `toml:"notify_diarization"`
	NotifyErrors          bool   `toml:"notify_errors"`
}

// Config encapsulates all configuration values for binky.
//
// Configuration sections by subsystem:
//   - Paths: data, temp, model, and log directories plus the IPC socket
//   - Transcription: whisper model selection and windowing
//   - Diarization: speaker clustering and solo detection
//   - Acquisition: HTTP download behaviour
//   - Pipeline: inference concurrency and stage chaining
//   - Logging: log format, level, and rotation
//   - Metrics: Prometheus listener
//   - Notifications: ntfy push messages for finished and failed jobs
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("binky.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The models directory is created so the status report can list it even
// before any model has been downloaded.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.TempDir, c.Paths.LogDir, c.Paths.ModelsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "binky.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Paths.Socket) != "" {
		return c.Paths.Socket
	}
	return filepath.Join(c.Paths.DataDir, "binky.sock")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "binky.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "binky.pid")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "binky.log")
}

// WindowSamples returns the transcription window length in samples at the
// given sample rate.
func (c *Config) WindowSamples(sampleRate int) int {
	return c.Transcription.WindowSeconds * sampleRate
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
