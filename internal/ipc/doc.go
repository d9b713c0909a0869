// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and
// conversions between store models and lightweight wire representations.
// Errors cross the wire as strings. Wrapped daemon errors already lead with
// their marker text ("validation error: ...", "not found: ..."), which is
// what the CLI shows.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
