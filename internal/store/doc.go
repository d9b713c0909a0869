// Package store persists episode pipeline state in SQLite.
//
// The schema lives in an embedded schema.sql guarded by a single version row.
// Status columns carry CHECK constraints so an error message can only exist
// alongside the error status, and diarization segments are always replaced
// as a whole inside one transaction.
package store
