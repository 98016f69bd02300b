package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine: closed")

	// ErrCollectionSealed is returned while the collection is drained for an
	// exclusive operation (compaction, snapshot). The condition clears once
	// the operation finishes; callers should retry.
	ErrCollectionSealed = errors.New("engine: collection sealed")

	// ErrNotFound is returned when an external id has no live document.
	ErrNotFound = errors.New("engine: not found")

	// ErrInvalidArgument is returned for malformed query parameters. Batch
	// input problems carry the richer ValidationError instead.
	ErrInvalidArgument = errors.New("engine: invalid argument")
)

// ValidationError reports a batch input rejected before any mutation.
type ValidationError struct {
	// ID is the external id of the offending document, empty when the
	// problem is not tied to one document.
	ID string
	// Reason describes what was wrong.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("engine: validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("engine: validation failed for %q: %s", e.ID, e.Reason)
}

// Unwrap makes ValidationError match ErrInvalidArgument in errors.Is checks.
func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }
