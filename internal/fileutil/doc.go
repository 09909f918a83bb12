// Package fileutil provides verified file copies and small directory helpers
// used when artifacts move between the working and archive directories.
package fileutil
