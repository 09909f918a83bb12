// Package config loads, normalizes, and validates tubego configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TELEGRAM_TOKEN and ALLOWED_USER_ID. The Config type centralizes every knob
// the daemon and CLI need, so the working and archive directories, the two
// Telegram delivery identities, and the retrieval binary are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
