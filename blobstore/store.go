package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`, so
// filesystem-backed stores satisfy it without translation.
var ErrNotFound = os.ErrNotExist

// ErrConcurrentModification is returned by conditional writes that lost a
// race against another writer, e.g. two processes advancing the catalog
// pointer at the same time. The caller should re-read and retry.
var ErrConcurrentModification = errors.New("blobstore: concurrent modification")

// BlobStore is an abstraction for accessing immutable data blobs
// (snapshots, manifests). Blobs are written once and never modified in
// place; Put replaces a blob as a whole.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible under name
	// only once the returned WritableBlob is closed successfully.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically. Readers observe either the previous
	// content or the full new content, never a mix.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of all blobs with the given prefix, sorted
	// lexicographically.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off. When fewer bytes are
	// available it returns the count read and io.EOF.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	// ReadRange streams length bytes starting at off. The range is
	// truncated at the end of the blob; an offset at or past the end
	// returns io.EOF. The caller must close the returned reader.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Close releases the handle.
	Close() error
}

// WritableBlob is a streaming write handle returned by Create.
// Close finalizes the blob; until then it is not visible to readers.
type WritableBlob interface {
	io.Writer
	io.Closer
	// Sync flushes buffered data to durable storage where the backend
	// supports it.
	Sync() error
}

// Mappable is an optional interface for Blobs that expose their content as
// a byte slice without copying, e.g. memory-mapped files. The slice is
// valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}
