package registry

import (
	"errors"
	"fmt"

	"tubego/internal/services"
)

var (
	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = fmt.Errorf("task %w", services.ErrNotFound)
	// ErrInvalidTransition is returned when the graph forbids a status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTaskBusy is returned when a retrieval or upload currently owns the task.
	ErrTaskBusy = errors.New("task busy")
	// ErrArtifactSet is returned when an artifact is recorded twice.
	ErrArtifactSet = errors.New("artifact already recorded")
	// ErrIDSpaceExhausted is returned when no free id could be generated.
	ErrIDSpaceExhausted = errors.New("could not allocate unique task id")
)

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func invalidTransition(id string, from, to Status) error {
	return fmt.Errorf("%w: task %s %s -> %s", ErrInvalidTransition, id, from, to)
}
