package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"binky/internal/queue"
	"binky/internal/services"
)

func TestEnqueueStartsLoopOnlyOnTransition(t *testing.T) {
	q := queue.New()
	if !q.Enqueue(queue.NewJob(1, "https://example.com/1.mp3")) {
		t.Fatal("first enqueue should request a loop")
	}
	if q.Enqueue(queue.NewJob(2, "https://example.com/2.mp3")) {
		t.Fatal("second enqueue must not request another loop")
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", q.Len())
	}

	for _, want := range []int64{1, 2} {
		job, ok := q.Dequeue()
		if !ok || job.EpisodeID != want {
			t.Fatalf("expected episode %d, got %d (ok=%v)", want, job.EpisodeID, ok)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected empty queue")
	}
	if q.Snapshot().IsProcessing {
		t.Fatal("empty dequeue should clear processing")
	}
	if !q.Enqueue(queue.NewJob(3, "https://example.com/3.mp3")) {
		t.Fatal("enqueue after drain should request a new loop")
	}
}

func TestCancelActiveWithoutJobIsNoop(t *testing.T) {
	q := queue.New()
	q.Enqueue(queue.NewJob(7, "https://example.com/7.mp3"))

	if _, ok := q.CancelActive(); ok {
		t.Fatal("expected no-op cancel without an active job")
	}
	snapshot := q.Snapshot()
	if snapshot.QueueLength != 1 || snapshot.HasActive() {
		t.Fatalf("cancel must not touch queued jobs: %+v", snapshot)
	}
}

func TestCancelActiveCancelsOnlyRunningJob(t *testing.T) {
	q := queue.New()
	q.Enqueue(queue.NewJob(1, "a"))
	q.Enqueue(queue.NewJob(2, "b"))

	job, _ := q.Dequeue()
	ctx := q.Activate(context.Background(), job)
	if !q.Contains(1) || !q.Contains(2) || q.Contains(3) {
		t.Fatal("Contains should cover active and queued episodes")
	}

	id, ok := q.CancelActive()
	if !ok || id != 1 {
		t.Fatalf("expected to cancel episode 1, got %d (ok=%v)", id, ok)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected job context cancelled, got %v", ctx.Err())
	}
	snapshot := q.Snapshot()
	if snapshot.HasActive() || snapshot.QueueLength != 1 {
		t.Fatalf("unexpected snapshot after cancel: %+v", snapshot)
	}
	if _, ok := q.CancelActive(); ok {
		t.Fatal("second cancel should be a no-op")
	}
}

func TestWorkerProcessesFIFOWithLateEnqueue(t *testing.T) {
	q := queue.New()
	var (
		mu      sync.Mutex
		order   []int64
		running int32
		maxSeen int32
	)
	release := make(chan struct{})
	firstStarted := make(chan struct{})

	w := &queue.Worker{Stage: "transcription", Queue: q}
	w.Handle = func(ctx context.Context, job queue.Job) error {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			prev := atomic.LoadInt32(&maxSeen)
			if n <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, n) {
				break
			}
		}
		if id, ok := services.EpisodeIDFromContext(ctx); !ok || id != job.EpisodeID {
			t.Errorf("expected episode id in context, got %d", id)
		}
		if job.EpisodeID == 1 {
			close(firstStarted)
			<-release
		}
		mu.Lock()
		order = append(order, job.EpisodeID)
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	if !w.Submit(ctx, queue.NewJob(1, "a")) {
		t.Fatal("first submit should start the loop")
	}
	w.Submit(ctx, queue.NewJob(2, "b"))
	<-firstStarted
	if w.Submit(ctx, queue.NewJob(3, "c")) {
		t.Fatal("late submit must reuse the running loop")
	}
	close(release)
	w.Wait()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected FIFO order [1 2 3], got %v", order)
	}
	if maxSeen != 1 {
		t.Fatalf("expected a single active job at a time, saw %d", maxSeen)
	}
	if snapshot := q.Snapshot(); snapshot.IsProcessing || snapshot.HasActive() {
		t.Fatalf("expected idle queue after drain: %+v", snapshot)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	q := queue.New()
	var (
		recovered error
		handled   []int64
	)
	w := &queue.Worker{
		Stage: "diarization",
		Queue: q,
		Handle: func(ctx context.Context, job queue.Job) error {
			if job.EpisodeID == 1 {
				panic("boom")
			}
			handled = append(handled, job.EpisodeID)
			return nil
		},
		OnPanic: func(ctx context.Context, job queue.Job, err error) {
			recovered = err
		},
	}
	q.Enqueue(queue.NewJob(1, "a"))
	q.Enqueue(queue.NewJob(2, "b"))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}

	if !errors.Is(recovered, services.ErrStatePanic) {
		t.Fatalf("expected ErrStatePanic, got %v", recovered)
	}
	if len(handled) != 1 || handled[0] != 2 {
		t.Fatalf("expected loop to continue after panic, got %v", handled)
	}
}
