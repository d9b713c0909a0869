// Package diarization labels speaker turns and classifies solo episodes.
//
// The Engine runs one clustering pass over the whole episode. The Driver
// converts its second-based output to milliseconds, assigns SPEAKER_<n>
// labels, and applies the solo heuristic, which only changes the terminal
// status and never the stored segments.
package diarization
