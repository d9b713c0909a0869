// Package logging assembles structured slog loggers and formatting helpers used
// across binky.
//
// It owns the console and JSON handlers, routes daemon output to a
// size-rotated log file, and exposes context-aware helpers so pipeline code
// can tag log lines with episode IDs, stages, and job IDs automatically. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
