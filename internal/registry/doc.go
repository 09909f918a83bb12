// Package registry holds the in-memory task records that drive the tubego
// lifecycle and is the single source of truth for task state.
//
// Every mutation goes through Registry methods, all of which run under one
// mutex covering the whole registry. Callers receive Task snapshots (copies)
// and never touch records directly. Status changes are validated against the
// transition graph in models.go; add new statuses there and extend the graph
// before wiring them into the pipeline.
//
// Records live only for the lifetime of the process.
package registry
