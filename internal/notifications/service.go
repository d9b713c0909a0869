package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"binky/internal/config"
)

const userAgent = "binky/0.1.0"

// Episode identifies the subject of a notification.
type Episode struct {
	ID    int64
	Title string
}

func (e Episode) label() string {
	if title := strings.TrimSpace(e.Title); title != "" {
		return title
	}
	return fmt.Sprintf("episode %d", e.ID)
}

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyTranscriptionCompleted(ctx context.Context, episode Episode) error
	NotifyDiarizationCompleted(ctx context.Context, episode Episode, solo bool) error
	NotifyError(ctx context.Context, stage string, episode Episode, message string) error
	TestNotification(ctx context.Context) error
}

// Enabled reports whether cfg configures an ntfy topic.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if !Enabled(cfg) {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyTranscriptionCompleted(ctx context.Context, episode Episode) error {
	return n.send(ctx, payload{
		title:   "Binky - Transcribed",
		message: fmt.Sprintf("📝 Transcript ready: %s", episode.label()),
		tags:    []string{"binky", "transcription", "completed"},
	})
}

func (n *ntfyService) NotifyDiarizationCompleted(ctx context.Context, episode Episode, solo bool) error {
	message := fmt.Sprintf("🎙️ Speakers labeled: %s", episode.label())
	if solo {
		message = fmt.Sprintf("🎙️ Single speaker: %s", episode.label())
	}
	return n.send(ctx, payload{
		title:   "Binky - Diarized",
		message: message,
		tags:    []string{"binky", "diarization", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, stage string, episode Episode, message string) error {
	var builder strings.Builder
	builder.WriteString("❌ ")
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(strings.ToUpper(stage[:1]) + stage[1:])
	} else {
		builder.WriteString("Job")
	}
	builder.WriteString(" failed for ")
	builder.WriteString(episode.label())
	builder.WriteString(": ")
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(message)
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "Binky - Error",
		message:  builder.String(),
		tags:     []string{"binky", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Binky - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"binky", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptionCompleted(context.Context, Episode) error     { return nil }
func (noopService) NotifyDiarizationCompleted(context.Context, Episode, bool) error { return nil }
func (noopService) NotifyError(context.Context, string, Episode, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
