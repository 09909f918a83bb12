// Package logging builds the slog loggers used by the daemon and CLI.
//
// It offers a human-oriented console handler, a JSON handler for machine
// consumption, attribute helpers with standardized field names, and a
// ProgressSampler that keeps download progress from flooding the log.
// Loggers derived through WithContext carry the task id, pipeline phase, and
// correlation id stamped on the context by the services package.
package logging
