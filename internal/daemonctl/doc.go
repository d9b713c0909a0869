// Package daemonctl holds the CLI-side helpers for launching, stopping, and
// inspecting the binky daemon process without going through cobra.
package daemonctl
