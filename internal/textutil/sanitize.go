package textutil

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace
// and never starts with a dot.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(fileNameReplacer.Replace(name))
	return strings.TrimLeft(name, ".")
}

// BoundFileName sanitizes name and shortens its stem so the whole name fits in
// maxRunes, keeping the extension intact.
func BoundFileName(name string, maxRunes int) string {
	name = SanitizeFileName(name)
	if maxRunes <= 0 || utf8.RuneCountInString(name) <= maxRunes {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	keep := maxRunes - utf8.RuneCountInString(ext)
	if keep < 1 {
		return truncateRunes(name, maxRunes)
	}
	return strings.TrimSpace(truncateRunes(stem, keep)) + ext
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
