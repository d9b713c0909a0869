// Package pipeline orchestrates the transcription and diarization stages.
//
// Each stage owns a queue.Queue and a queue.Worker. Starting a job validates
// the episode and its models up front, persists the queued status, and kicks
// the stage loop when it was idle. The job handlers then walk the episode
// through download, decode, and inference, persisting every status change and
// emitting events to a Sink as they go.
//
// Cancellation is cooperative: the active job's context is cancelled and the
// handler notices between download chunks, decode blocks, or inference
// windows. A cancelled job resets its episode to not_started. Failures land
// in the error status with a message. Every exit path removes the job's temp
// audio file.
//
// A finished transcription chains into diarization when auto_diarize is on
// and the diarization models are installed.
package pipeline
