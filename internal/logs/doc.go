// Package logs reads the daemon log file for `binky logs`.
//
// Tail returns the last lines of the file plus the byte offset to resume
// from; Follow polls from an offset until new lines arrive or the wait
// window passes. Memory stays bounded by the requested line count, and a
// rotated (shrunk) file restarts from the beginning.
package logs
