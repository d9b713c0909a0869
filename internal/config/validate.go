package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateAcquisition(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.WindowSeconds < minWindowSeconds || c.Transcription.WindowSeconds > maxWindowSeconds {
		return fmt.Errorf("transcription.window_seconds must be between %d and %d", minWindowSeconds, maxWindowSeconds)
	}
	return nil
}

func (c *Config) validateDiarization() error {
	if c.Diarization.SoloThreshold < 0 || c.Diarization.SoloThreshold >= 0.5 {
		return errors.New("diarization.solo_threshold must be between 0 and 0.5")
	}
	if c.Diarization.NumClusters == 0 && c.Diarization.ClusterThreshold <= 0 {
		return errors.New("diarization.cluster_threshold must be positive when num_clusters is 0")
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	if c.Acquisition.ChunkSize < minChunkSize {
		return fmt.Errorf("acquisition.chunk_size must be at least %d bytes", minChunkSize)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Bind); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}
