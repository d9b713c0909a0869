// Package preflight provides readiness checks for the filesystem paths,
// model files, and host resources binky depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check so a
//     doomed configuration is visible before the first hour-long job.
//   - The CLI "binky preflight" command renders the same results, optionally
//     adding a reachability check for a specific audio URL.
//
// Optional checks (diarization models when diarization is enabled) never
// make the overall result fail.
package preflight
