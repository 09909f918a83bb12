// Package services defines shared utilities consumed by the task pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, pipeline phases, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate capability
//     failures into a small taxonomy (retrieval, transport, cancellation,
//     missing artifacts, unknown tasks).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
