package textutil

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const ellipsis = "..."

// ErrorPreviewRunes bounds failure messages shown outside the task detail view.
const ErrorPreviewRunes = 50

// Truncate shortens s to at most maxRunes runes for display, appending an
// ellipsis when something was cut. Stored values are never truncated.
func Truncate(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	if maxRunes <= len(ellipsis) {
		return truncateRunes(s, maxRunes)
	}
	return strings.TrimSpace(truncateRunes(s, maxRunes-len(ellipsis))) + ellipsis
}

// ErrorPreview shortens a recorded failure message for one-line display.
func ErrorPreview(msg string) string {
	return Truncate(msg, ErrorPreviewRunes)
}

// Caption turns a restricted artifact filename ("Some_Clip_Title.mp4") back
// into readable text ("Some Clip Title") for delivery captions.
func Caption(fileName string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	if base == "." || base == "/" {
		return ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	stem = strings.Join(strings.Fields(stem), " ")
	if stem == "" {
		return base
	}
	return cases.Title(language.Und, cases.NoLower).String(stem)
}
