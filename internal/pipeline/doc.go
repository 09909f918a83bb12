// Package pipeline drives tasks through analyze, download, upload and archive.
//
// The Orchestrator owns no task state of its own: every transition is written
// through the registry, which enforces the status graph. Blocking retrieval
// and upload calls run on the shared worker pool; the orchestrator only waits
// on their futures. Capability failures never escape as errors from a run.
// They are recorded as failed_dl or failed_ul and surfaced through the
// task's LastError and the per-status follow-up actions.
//
// Cancellation is cooperative. The retriever checks the task's token on each
// progress tick, and a cancellation observed after the retriever returns still
// wins: the artifact is discarded and the record removed.
package pipeline
