// Package session holds the operator's process-wide preferences: the active
// language, the default quality preset and the last local file listing.
//
// A single Session is created at daemon start and passed explicitly to the
// components that need it.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"tubego/internal/retrieval"
)

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

// Session is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	language string
	quality  string
	files    []string
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Language       string
	DefaultQuality string
	Files          []string
}

// New validates the initial preferences.
func New(lang, quality string) (*Session, error) {
	s := &Session{}
	if err := s.SetLanguage(lang); err != nil {
		return nil, err
	}
	if err := s.SetDefaultQuality(quality); err != nil {
		return nil, err
	}
	return s, nil
}

// SupportedLanguages lists accepted language codes.
func SupportedLanguages() []string {
	out := make([]string, len(supported))
	for i, tag := range supported {
		base, _ := tag.Base()
		out[i] = base.String()
	}
	return out
}

// MatchLanguage maps any BCP 47 code or POSIX locale ("es-MX",
// "en_US.UTF-8") to a supported language, falling back to English.
func MatchLanguage(code string) string {
	code, _, _ = strings.Cut(strings.TrimSpace(code), ".")
	code, _, _ = strings.Cut(code, "@")
	code = strings.ReplaceAll(code, "_", "-")
	tag, err := language.Parse(code)
	if err != nil {
		return "en"
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// Language returns the active language code.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage switches the active language. Only exact supported codes are
// accepted; use DetectLanguage for loose input.
func (s *Session) SetLanguage(code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, lang := range SupportedLanguages() {
		if lang == code {
			s.mu.Lock()
			s.language = code
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("unsupported language %q (expected one of %s)", code, strings.Join(SupportedLanguages(), ", "))
}

// DetectLanguage sets the language from a client-reported code and returns it.
func (s *Session) DetectLanguage(code string) string {
	lang := MatchLanguage(code)
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
	return lang
}

// DefaultQuality returns the preset applied when a submission names none.
func (s *Session) DefaultQuality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// SetDefaultQuality validates and stores the default preset.
func (s *Session) SetDefaultQuality(quality string) error {
	q, err := retrieval.ParseQuality(quality)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.quality = q
	s.mu.Unlock()
	return nil
}

// ResolveQuality returns quality when set, otherwise the session default.
func (s *Session) ResolveQuality(quality string) (string, error) {
	if strings.TrimSpace(quality) == "" {
		return s.DefaultQuality(), nil
	}
	return retrieval.ParseQuality(quality)
}

// SetFiles replaces the cached file listing.
func (s *Session) SetFiles(names []string) {
	s.mu.Lock()
	s.files = append([]string(nil), names...)
	s.mu.Unlock()
}

// Files returns the cached file listing.
func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// ResolveFile maps a 1-based index from the last listing, or a plain file
// name, to a file name. Names containing path separators are rejected.
func (s *Session) ResolveFile(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("file reference required")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.files) == 0 {
			return "", fmt.Errorf("no file listing cached; list files first")
		}
		if n < 1 || n > len(s.files) {
			return "", fmt.Errorf("file index %d out of range 1-%d", n, len(s.files))
		}
		return s.files[n-1], nil
	}
	if strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." {
		return "", fmt.Errorf("invalid file name %q", ref)
	}
	return ref, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Language:       s.language,
		DefaultQuality: s.quality,
		Files:          append([]string(nil), s.files...),
	}
}
