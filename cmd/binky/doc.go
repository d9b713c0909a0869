// Package main hosts the binky CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into IPC calls against
// the daemon: episode registration, stage jobs, result lookups, and event
// polling. It also launches and stops the daemon process itself and exposes
// configuration scaffolding and host preflight checks that work without a
// running daemon.
//
// Keep this package thin. Behaviour belongs in the internal packages; the
// commands here only resolve configuration, dial the socket, and render.
package main
