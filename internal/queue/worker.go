package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"binky/internal/logging"
	"binky/internal/services"
)

// Handler processes one job end to end, including its status bookkeeping.
type Handler func(ctx context.Context, job Job) error

// PanicHandler receives a recovered handler panic as an ErrStatePanic error.
type PanicHandler func(ctx context.Context, job Job, err error)

// Worker drives a Queue with at most one loop goroutine at a time.
type Worker struct {
	Stage   string
	Queue   *Queue
	Handle  Handler
	OnPanic PanicHandler
	Logger  *slog.Logger

	wg sync.WaitGroup
}

// Submit enqueues a job and starts the loop when the queue was idle. It
// reports whether a new loop was started.
func (w *Worker) Submit(ctx context.Context, job Job) bool {
	if !w.Queue.Enqueue(job) {
		return false
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
	}()
	return true
}

// Run dequeues and handles jobs until the queue is empty. The queue lock is
// never held while the handler runs.
func (w *Worker) Run(ctx context.Context) {
	logger := w.logger()
	logger.Debug("worker loop started", logging.String(logging.FieldEventType, "worker_start"))
	for {
		job, ok := w.Queue.Dequeue()
		if !ok {
			logger.Debug("worker loop idle", logging.String(logging.FieldEventType, "worker_idle"))
			return
		}
		jobCtx := w.Queue.Activate(ctx, job)
		jobCtx = services.WithEpisodeID(jobCtx, job.EpisodeID)
		jobCtx = services.WithJobID(jobCtx, job.ID)
		jobCtx = services.WithStage(jobCtx, w.Stage)
		w.handle(jobCtx, job)
		w.Queue.Finish(job.EpisodeID)
	}
}

// Wait blocks until every loop started through Submit has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) handle(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			err := services.Wrap(services.ErrStatePanic, w.Stage, "handle job",
				fmt.Sprintf("episode %d", job.EpisodeID), fmt.Errorf("panic: %v", r))
			logging.WithContext(ctx, w.logger()).Error("stage handler panicked",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stage_panic"),
				logging.String("stack", string(debug.Stack())),
			)
			if w.OnPanic != nil {
				w.OnPanic(context.WithoutCancel(ctx), job, err)
			}
		}
	}()
	if w.Handle == nil {
		return
	}
	if err := w.Handle(ctx, job); err != nil {
		logging.WithContext(ctx, w.logger()).Debug("job finished with error",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_error"),
		)
	}
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return logging.NewNop()
	}
	return w.Logger
}
