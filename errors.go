package korpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/engine"
	"github.com/hupe1980/korpus/hnsw"
	"github.com/hupe1980/korpus/manifest"
)

var (
	// ErrNotFound is returned when a collection, document or stored blob
	// does not exist.
	ErrNotFound = errors.New("korpus: not found")

	// ErrAlreadyExists is returned by CreateCollection when a collection
	// with the same name is already registered.
	ErrAlreadyExists = errors.New("korpus: already exists")

	// ErrConfigConflict is returned by GetOrCreateCollection when the
	// requested configuration does not match the existing collection.
	ErrConfigConflict = errors.New("korpus: config conflict")

	// ErrInvalidArgument is returned for malformed requests: bad
	// dimensions, empty ids, invalid filters, missing configuration.
	ErrInvalidArgument = errors.New("korpus: invalid argument")

	// ErrCollectionSealed is returned while a collection is drained for
	// compaction or a snapshot. The condition is transient; retry after
	// the maintenance operation finishes.
	ErrCollectionSealed = errors.New("korpus: collection sealed")

	// ErrClosed is returned for operations on a closed database or
	// collection.
	ErrClosed = errors.New("korpus: closed")
)

// ValidationError reports the first document that failed batch validation.
// No document of the batch has been applied when it is returned.
type ValidationError = engine.ValidationError

// DimensionMismatchError indicates a vector whose length does not match the
// collection dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// StorageError wraps a failure of the blob store or the catalog. Transient
// reports whether retrying the operation can succeed.
type StorageError struct {
	Op        string
	Key       string
	Err       error
	Transient bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err into a StorageError, classifying missing blobs,
// lost CAS races and context expiry as permanent.
func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	transient := !errors.Is(err, blobstore.ErrNotFound) &&
		!errors.Is(err, blobstore.ErrConcurrentModification) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
	return &StorageError{Op: op, Key: key, Err: err, Transient: transient}
}

// translateError normalizes errors from the engine and storage layers so
// callers only match against the sentinels and typed errors of this package.
// The original error stays reachable via errors.Is and errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, engine.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, engine.ErrCollectionSealed):
		return fmt.Errorf("%w: %w", ErrCollectionSealed, err)
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, manifest.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *hnsw.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, engine.ErrInvalidArgument) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
