// Package services defines shared utilities consumed by the pipeline stages
// and the inference backends.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, stage names, job IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (network, io, decode, model, inference, panic) without losing the cause.
//   - The ErrCancelled outcome, which stages report instead of an error when
//     a job is cancelled cooperatively.
//
// Backends live in subpackages (whisper, sherpa) so cgo dependencies stay out
// of the core pipeline packages and their tests.
package services
