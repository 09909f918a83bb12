// Package textutil holds small string helpers shared by the pipeline and CLI:
// filesystem-safe artifact names, display truncation, and captions derived
// from restricted filenames.
package textutil
