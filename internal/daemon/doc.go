// Package daemon coordinates the long-running binky process.
//
// It ties configuration, the SQLite store, the stage pipeline, and the event
// broadcaster into a single lifecycle with flock-based locking to prevent
// multiple instances. Start reconciles episodes left in flight by a previous
// process before any new work is accepted; Stop drains the pipeline and
// releases the lock.
//
// The IPC service calls the pass-through methods here. Keep orchestration
// logic in internal/pipeline: the daemon focuses on startup, shutdown, and
// the read-side views (status, episodes, results, events).
package daemon
