// Package retrieval defines the media retrieval capability consumed by the
// task pipeline and ships the yt-dlp backed implementation.
//
// A Retriever is created per task and never shared. Retrieve reports progress
// through a callback and polls a cancellation Token on every progress tick;
// cancellation is cooperative, so its latency is bounded only by how often the
// underlying tool reports progress. A cancelled retrieval returns an error
// matching services.ErrCancelled; every other failure matches
// services.ErrRetrieval.
package retrieval
