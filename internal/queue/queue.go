package queue

import (
	"context"
	"sync"
)

// Queue is a FIFO of stage jobs with at most one active job. All fields sit
// behind a single mutex that is only held for structural changes.
type Queue struct {
	mu         sync.Mutex
	jobs       []Job
	active     int64
	cancel     context.CancelFunc
	processing bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a job. It returns true when the queue moved from idle to
// processing, in which case the caller must start exactly one worker loop.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	if q.processing {
		return false
	}
	q.processing = true
	return true
}

// Dequeue pops the head job. When the queue is empty it clears the
// processing flag in the same critical section and returns false, so a
// concurrent Enqueue either lands before the check or starts a new loop.
func (q *Queue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.processing = false
		q.jobs = nil
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

// Activate marks the job as running and returns its cancellable context.
func (q *Queue) Activate(parent context.Context, job Job) context.Context {
	ctx, cancel := context.WithCancel(parent)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.active = job.EpisodeID
	q.cancel = cancel
	return ctx
}

// Finish clears the active job if it still belongs to episodeID and releases
// its context.
func (q *Queue) Finish(episodeID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != episodeID {
		return
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.active = 0
	q.cancel = nil
}

// CancelActive cancels the running job. Queued jobs are never touched. It
// returns false when nothing is running.
func (q *Queue) CancelActive() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == 0 || q.cancel == nil {
		return 0, false
	}
	id := q.active
	q.cancel()
	q.active = 0
	q.cancel = nil
	return id, true
}

// Contains reports whether the episode is queued or active.
func (q *Queue) Contains(episodeID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == episodeID && episodeID != 0 {
		return true
	}
	for _, job := range q.jobs {
		if job.EpisodeID == episodeID {
			return true
		}
	}
	return false
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Snapshot returns the current status.
func (q *Queue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		ActiveEpisodeID: q.active,
		QueueLength:     len(q.jobs),
		IsProcessing:    q.processing,
	}
}
