// Package archive moves delivered artifacts out of the work directory into
// the archive directory.
//
// Moves prefer a rename. When the two directories live on different
// filesystems the file is copied to a ".partial" sibling, verified, renamed
// into place and only then removed from the source, so a failed move never
// loses the original.
package archive
