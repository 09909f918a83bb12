// Package main hosts the tubego CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: task submission and lifecycle actions, work directory
// file management, session settings, and configuration scaffolding. The
// daemon itself runs from the same binary via `tubego daemon run`.
package main
