package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"binky/internal/config"
	"binky/internal/logging"
	"binky/internal/pipeline"
)

// TitleLookup resolves an episode title for message text. Errors fall back to
// the numeric id.
type TitleLookup func(ctx context.Context, episodeID int64) (string, error)

// Sink turns terminal pipeline events into notifications. Delivery runs on
// its own goroutine so Emit never blocks a stage loop on the network.
type Sink struct {
	svc     Service
	opts    config.Notifications
	lookup  TitleLookup
	logger  *slog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewSink wraps svc. lookup may be nil.
func NewSink(cfg *config.Config, svc Service, lookup TitleLookup, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{
		svc:     svc,
		opts:    cfg.Notifications,
		lookup:  lookup,
		logger:  logger,
		timeout: timeout,
	}
}

// Emit schedules a notification for Done and Error events of enabled stages.
func (s *Sink) Emit(evt pipeline.Event) {
	if s == nil || s.svc == nil || !s.wants(evt) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(evt)
	}()
}

// Wait blocks until scheduled deliveries finish.
func (s *Sink) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

func (s *Sink) wants(evt pipeline.Event) bool {
	switch evt.Name {
	case pipeline.EventError:
		return s.opts.NotifyErrors
	case pipeline.EventDone:
		switch evt.Data.Stage {
		case "transcription":
			return s.opts.NotifyTranscription
		case "diarization":
			return s.opts.NotifyDiarization
		}
	}
	return false
}

func (s *Sink) deliver(evt pipeline.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	episode := Episode{ID: evt.Data.EpisodeID}
	if s.lookup != nil {
		if title, err := s.lookup(ctx, evt.Data.EpisodeID); err == nil {
			episode.Title = title
		}
	}

	var err error
	switch {
	case evt.Name == pipeline.EventError:
		err = s.svc.NotifyError(ctx, evt.Data.Stage, episode, evt.Data.Message)
	case evt.Data.Stage == "transcription":
		err = s.svc.NotifyTranscriptionCompleted(ctx, episode)
	default:
		solo := evt.Data.Solo != nil && *evt.Data.Solo
		err = s.svc.NotifyDiarizationCompleted(ctx, episode, solo)
	}
	if err != nil {
		logging.WarnWithContext(s.logger, "notification delivery failed", "notification_failed",
			logging.Int64(logging.FieldEpisodeID, evt.Data.EpisodeID),
			logging.String(logging.FieldStage, evt.Data.Stage),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
			logging.Error(err),
		)
	}
}
