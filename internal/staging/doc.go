// Package staging tidies the work directory. Downloads interrupted by a crash
// leave partial files behind that no task will ever claim again; CleanStale
// removes the ones that have sat untouched for long enough.
package staging
