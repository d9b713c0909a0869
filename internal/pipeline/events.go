package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"binky/internal/logging"
)

// Event names shared by both stages.
const (
	EventDownloading = "Downloading"
	EventProgress    = "Progress"
	EventSegment     = "Segment"
	EventDone        = "Done"
	EventError       = "Error"
	EventCancelled   = "Cancelled"
)

// EventData is the payload of an Event. Unused fields are omitted on the wire.
type EventData struct {
	EpisodeID int64  `json:"episode_id"`
	Stage     string `json:"stage"`
	Percent   *int   `json:"percent,omitempty"`
	Text      string `json:"text,omitempty"`
	StartMS   *int64 `json:"start_ms,omitempty"`
	EndMS     *int64 `json:"end_ms,omitempty"`
	Message   string `json:"message,omitempty"`
	Solo      *bool  `json:"solo,omitempty"`
}

// Event is one status notification. It marshals as
// {"event":"Progress","data":{"percent":42,"episode_id":1,"stage":"transcription"}}.
type Event struct {
	Sequence  uint64    `json:"seq,omitempty"`
	Timestamp time.Time `json:"ts"`
	Name      string    `json:"event"`
	Data      EventData `json:"data"`
}

// JSON renders the event for the frontend channel.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

func newEvent(stage string, episodeID int64, name string) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Name:      name,
		Data:      EventData{EpisodeID: episodeID, Stage: stage},
	}
}

func downloadingEvent(stage string, episodeID int64, percent int) Event {
	evt := newEvent(stage, episodeID, EventDownloading)
	evt.Data.Percent = &percent
	return evt
}

func progressEvent(stage string, episodeID int64, percent int) Event {
	evt := newEvent(stage, episodeID, EventProgress)
	evt.Data.Percent = &percent
	return evt
}

func segmentEvent(stage string, episodeID int64, text string, startMS, endMS int64) Event {
	evt := newEvent(stage, episodeID, EventSegment)
	evt.Data.Text = text
	evt.Data.StartMS = &startMS
	evt.Data.EndMS = &endMS
	return evt
}

func doneEvent(stage string, episodeID int64, solo *bool) Event {
	evt := newEvent(stage, episodeID, EventDone)
	evt.Data.Solo = solo
	return evt
}

func errorEvent(stage string, episodeID int64, message string) Event {
	evt := newEvent(stage, episodeID, EventError)
	evt.Data.Message = message
	return evt
}

func cancelledEvent(stage string, episodeID int64) Event {
	return newEvent(stage, episodeID, EventCancelled)
}

// Sink receives pipeline events. Emit must not block the caller for long;
// delivery is best effort.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(evt Event) { f(evt) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Emit forwards evt to every non-nil sink.
func (m MultiSink) Emit(evt Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(evt)
		}
	}
}

// LogSink writes events to a structured logger. Progress events are sampled
// per episode so long runs do not flood the log.
type LogSink struct {
	logger *slog.Logger

	mu       sync.Mutex
	samplers map[string]*logging.ProgressSampler
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logger, samplers: make(map[string]*logging.ProgressSampler)}
}

// Emit logs evt.
func (s *LogSink) Emit(evt Event) {
	attrs := []any{
		logging.String(logging.FieldEventType, "pipeline_event"),
		logging.String("event", evt.Name),
		logging.Int64(logging.FieldEpisodeID, evt.Data.EpisodeID),
		logging.String(logging.FieldStage, evt.Data.Stage),
	}
	switch evt.Name {
	case EventDownloading, EventProgress:
		if evt.Data.Percent == nil || !s.sample(evt) {
			return
		}
		attrs = append(attrs, logging.Int("percent", *evt.Data.Percent))
		s.logger.Debug("stage progress", attrs...)
	case EventSegment:
		return
	case EventError:
		attrs = append(attrs, logging.String("message", evt.Data.Message))
		s.logger.Warn("stage failed", attrs...)
		s.forget(evt)
	case EventDone:
		if evt.Data.Solo != nil {
			attrs = append(attrs, logging.Bool("solo", *evt.Data.Solo))
		}
		s.logger.Info("stage completed", attrs...)
		s.forget(evt)
	default:
		s.logger.Info("stage "+lowerFirst(evt.Name), attrs...)
		s.forget(evt)
	}
}

func (s *LogSink) sample(evt Event) bool {
	key := samplerKey(evt)
	s.mu.Lock()
	defer s.mu.Unlock()
	sampler, ok := s.samplers[key]
	if !ok {
		sampler = logging.NewProgressSampler(25)
		s.samplers[key] = sampler
	}
	return sampler.ShouldLog(*evt.Data.Percent, evt.Name)
}

func (s *LogSink) forget(evt Event) {
	s.mu.Lock()
	delete(s.samplers, samplerKey(evt))
	s.mu.Unlock()
}

func samplerKey(evt Event) string {
	return evt.Data.Stage + "/" + formatID(evt.Data.EpisodeID)
}

// ChannelSink forwards events to a channel without blocking; events are
// dropped when the channel is full.
type ChannelSink struct {
	ch chan<- Event
}

// NewChannelSink wraps ch.
func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Emit attempts a non-blocking send.
func (s *ChannelSink) Emit(evt Event) {
	if s == nil || s.ch == nil {
		return
	}
	select {
	case s.ch <- evt:
	default:
	}
}

// Broadcaster keeps a bounded ring of recent events and lets readers poll
// with a cursor. Slow readers lose the oldest events rather than blocking
// the pipeline.
type Broadcaster struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewBroadcaster returns a Broadcaster retaining up to capacity events.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = 512
	}
	b := &Broadcaster{capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Emit stores evt with the next sequence number and wakes waiting readers.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if len(b.buffer) == b.capacity {
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:b.capacity-1]
	}
	b.buffer = append(b.buffer, evt)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Fetch returns events with a sequence greater than since and the cursor to
// pass on the next call. When wait is true it blocks until an event arrives
// or ctx ends. A cursor ahead of the last sequence, as a client holds across
// a daemon restart, returns at once with the current head so the caller
// resyncs instead of waiting for numbers that may never be reached.
func (b *Broadcaster) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if b == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > b.capacity {
		limit = b.capacity
	}

	stopWake := make(chan struct{})
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-stopWake:
			}
		}()
	}
	defer close(stopWake)

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		events, next := b.snapshotLocked(since, limit)
		if len(events) > 0 || !wait || since > b.nextSeq {
			return events, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		b.cond.Wait()
	}
}

// Cursor returns the latest assigned sequence number.
func (b *Broadcaster) Cursor() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

func (b *Broadcaster) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	start := len(b.buffer)
	for i, evt := range b.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	if start == len(b.buffer) {
		return nil, b.nextSeq
	}
	end := start + limit
	if end > len(b.buffer) {
		end = len(b.buffer)
	}
	out := make([]Event, end-start)
	copy(out, b.buffer[start:end])
	return out, out[len(out)-1].Sequence
}
