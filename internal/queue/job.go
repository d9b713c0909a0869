package queue

import (
	"strings"

	"github.com/google/uuid"
)

// Job is one unit of stage work. Jobs live only in memory; startup
// reconciliation resets episodes whose job was lost with the process.
type Job struct {
	ID        string
	EpisodeID int64
	AudioURL  string
}

// NewJob builds a job with a fresh identifier.
func NewJob(episodeID int64, audioURL string) Job {
	return Job{
		ID:        uuid.NewString(),
		EpisodeID: episodeID,
		AudioURL:  strings.TrimSpace(audioURL),
	}
}

// Status is a point-in-time view of a queue.
type Status struct {
	ActiveEpisodeID int64 `json:"active_episode_id,omitempty"`
	QueueLength     int   `json:"queue_length"`
	IsProcessing    bool  `json:"is_processing"`
}

// HasActive reports whether a job is currently running.
func (s Status) HasActive() bool {
	return s.ActiveEpisodeID != 0
}
