// Package notifications pushes job outcomes to ntfy.
//
// Service formats and delivers the messages; Sink adapts it to the pipeline
// event stream so finished, solo, and failed jobs reach the configured topic
// without the stage loops knowing about notifications at all. When no topic
// is configured NewService returns a no-op implementation.
package notifications
