// Package fetch streams episode audio from HTTP to temp files with cooperative
// cancellation and percentage progress mapped onto a caller supplied range.
package fetch
