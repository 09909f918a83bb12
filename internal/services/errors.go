package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRetrieval       = errors.New("retrieval error")
	ErrCancelled       = errors.New("cancelled by user")
	ErrTransport       = errors.New("transport error")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
)

// Kind names an error class for callers that only see error strings (IPC, CLI).
type Kind string

const (
	KindNone            Kind = ""
	KindRetrieval       Kind = "retrieval"
	KindCancelled       Kind = "cancelled"
	KindTransport       Kind = "transport"
	KindArtifactMissing Kind = "artifact_missing"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindConfiguration   Kind = "configuration"
	KindInternal        Kind = "internal"
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrRetrieval
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its taxonomy kind. Cancellation is checked first
// so a cancelled retrieval is never reported as a failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrArtifactMissing):
		return KindArtifactMissing
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrRetrieval):
		return KindRetrieval
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindInternal
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
