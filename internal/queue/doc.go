// Package queue holds the in-memory job queues that feed each pipeline stage.
//
// A Queue is a FIFO with a single active slot and a processing flag. Enqueue
// reports when the flag flips from idle to processing so exactly one Worker
// loop runs per stage; the loop exits once Dequeue finds the queue empty.
// Cancelling the active job cancels only its context and leaves queued jobs
// untouched.
package queue
