// Package preflight provides readiness checks for the directories, external
// binaries and Telegram identities tubego depends on.
//
// The daemon runs RunAll at startup and logs every failed check without
// refusing to start; the CLI "tubego status" command renders the same
// results so the operator can see what is misconfigured.
package preflight
