package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"tubego/internal/fileutil"
	"tubego/internal/logging"
	"tubego/internal/services"
	"tubego/internal/textutil"
)

const (
	partialSuffix  = ".partial"
	maxNameAttempt = 10000
	maxNameRunes   = 200
)

// Archiver relocates files into a single archive directory.
type Archiver struct {
	dir    string
	logger *slog.Logger
	rename func(oldpath, newpath string) error
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithRename overrides os.Rename (tests simulate cross-device moves with it).
func WithRename(fn func(oldpath, newpath string) error) Option {
	return func(a *Archiver) {
		if fn != nil {
			a.rename = fn
		}
	}
}

// New returns an Archiver writing into dir.
func New(dir string, logger *slog.Logger, opts ...Option) *Archiver {
	a := &Archiver{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "archive"),
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string { return a.dir }

// Archive moves src into the archive directory and returns the new path.
// On failure src is left untouched.
func (a *Archiver) Archive(src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrArtifactMissing, "archive", "stat source", src, err)
		}
		return "", services.Wrap(services.ErrConfiguration, "archive", "stat source", src, err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "archive", "ensure archive dir", a.dir, err)
	}
	name := textutil.BoundFileName(filepath.Base(src), maxNameRunes)
	if name == "" {
		name = filepath.Base(src)
	}
	dst, err := a.nextPath(name)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "archive", "allocate filename", "", err)
	}

	renameErr := a.rename(src, dst)
	if renameErr == nil {
		a.logger.Debug("artifact archived", logging.String("path", dst))
		return dst, nil
	}
	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, unix.EXDEV) {
		return "", services.Wrap(services.ErrConfiguration, "archive", "move file", "", renameErr)
	}

	if err := a.copyAcross(src, dst); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "archive", "copy file", "cross-device move failed", err)
	}
	if err := os.Remove(src); err != nil {
		logging.WarnWithContext(a.logger, "failed to remove source after copy; duplicate file remains", "archive_source_cleanup_failed",
			logging.String("source", src),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the work dir copy manually"),
			logging.String(logging.FieldImpact, "artifact exists in both work and archive directories"),
		)
	}
	a.logger.Debug("artifact archived across devices", logging.String("path", dst))
	return dst, nil
}

func (a *Archiver) copyAcross(src, dst string) error {
	partial := dst + partialSuffix
	if err := fileutil.CopyFileVerified(src, partial); err != nil {
		_ = os.Remove(partial)
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("finalize %s: %w", dst, err)
	}
	return nil
}

// nextPath returns a free name in the archive dir, adding " (n)" before the
// extension when the plain name is taken.
func (a *Archiver) nextPath(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for attempt := 0; attempt < maxNameAttempt; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, attempt, ext)
		}
		path := filepath.Join(a.dir, candidate)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return path, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted archive filename slots for %s in %s", name, a.dir)
}

// List returns the archived files.
func (a *Archiver) List() ([]fileutil.FileEntry, error) {
	return fileutil.ListFiles(a.dir, partialSuffix)
}

// Clear removes every regular file in the archive directory and returns how
// many were deleted.
func (a *Archiver) Clear() (int, error) {
	entries, err := fileutil.ListFiles(a.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.Remove(entry.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name, err)
		}
		removed++
	}
	a.logger.Info("archive cleared", logging.Int("removed", removed))
	return removed, nil
}
