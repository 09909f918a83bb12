// Package notifications delivers task events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover task completion and failures so the
// pipeline can emit consistent messages without duplicating HTTP glue.
package notifications
