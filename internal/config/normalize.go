package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeDiarization()
	c.normalizeAcquisition()
	c.normalizePipeline()
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv(modelsDirEnvVar); ok && strings.TrimSpace(value) != "" {
		c.Paths.ModelsDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if strings.TrimSpace(c.Paths.ModelsDir) == "" {
		c.Paths.ModelsDir = defaultModelsDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.TempDir, err = expandPath(strings.TrimSpace(c.Paths.TempDir)); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.ModelsDir, err = expandPath(strings.TrimSpace(c.Paths.ModelsDir)); err != nil {
		return fmt.Errorf("paths.models_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.Socket, err = expandPath(strings.TrimSpace(c.Paths.Socket)); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	c.Transcription.Model = strings.TrimSuffix(strings.TrimPrefix(c.Transcription.Model, "ggml-"), ".bin")
	if c.Transcription.WindowSeconds <= 0 {
		c.Transcription.WindowSeconds = defaultWindowSeconds
	}
	if c.Transcription.Threads <= 0 {
		c.Transcription.Threads = defaultTranscriptionThreads
	}
	if value, ok := os.LookupEnv(languageEnvVar); ok && strings.TrimSpace(value) != "" {
		c.Transcription.DefaultLanguage = value
	}
	c.Transcription.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Transcription.DefaultLanguage))
	if c.Transcription.DefaultLanguage == "" {
		c.Transcription.DefaultLanguage = languageAuto
	}
}

func (c *Config) normalizeDiarization() {
	if c.Diarization.NumClusters < 0 {
		c.Diarization.NumClusters = 0
	}
	if c.Diarization.Threads <= 0 {
		c.Diarization.Threads = defaultDiarizationThreads
	}
	if c.Diarization.MinDurationOn < 0 {
		c.Diarization.MinDurationOn = 0
	}
	if c.Diarization.MinDurationOff < 0 {
		c.Diarization.MinDurationOff = 0
	}
}

func (c *Config) normalizeAcquisition() {
	if c.Acquisition.TimeoutSeconds <= 0 {
		c.Acquisition.TimeoutSeconds = defaultAcquisitionTimeout
	}
	if c.Acquisition.ChunkSize <= 0 {
		c.Acquisition.ChunkSize = defaultChunkSize
	}
	c.Acquisition.UserAgent = strings.TrimSpace(c.Acquisition.UserAgent)
	if c.Acquisition.UserAgent == "" {
		c.Acquisition.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxConcurrentInference <= 0 {
		c.Pipeline.MaxConcurrentInference = defaultMaxConcurrentInference
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}
