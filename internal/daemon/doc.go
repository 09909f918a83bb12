// Package daemon coordinates the long-running tubego process.
//
// It wires configuration, the in-memory task registry, the worker pool, the
// upload router, the archiver and the operator session into a single
// lifecycle with flock-based locking to prevent multiple instances. The IPC
// server calls into the daemon; the pipeline package holds the per-task
// logic.
//
// Keep orchestration logic out of here: the daemon focuses on startup,
// shutdown and status reporting.
package daemon
