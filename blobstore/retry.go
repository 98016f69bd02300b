package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// RetryPolicy controls how transient backend failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles on
	// every further attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   50 * time.Millisecond,
}

// RetryingStore wraps a BlobStore and retries transient failures of
// Open, Put, Delete, List and of blob reads. Create is not retried: a
// streaming write cannot be replayed.
//
// Permanent conditions (ErrNotFound, ErrConcurrentModification, context
// cancellation, io.EOF) are returned immediately.
type RetryingStore struct {
	inner  BlobStore
	policy RetryPolicy
}

// NewRetryingStore wraps inner with the given policy. A zero policy
// falls back to DefaultRetryPolicy.
func NewRetryingStore(inner BlobStore, policy RetryPolicy) *RetryingStore {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	return &RetryingStore{inner: inner, policy: policy}
}

func (s *RetryingStore) Open(ctx context.Context, name string) (Blob, error) {
	var b Blob
	err := s.do(ctx, func() error {
		var err error
		b, err = s.inner.Open(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &retryingBlob{inner: b, store: s}, nil
}

func (s *RetryingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return s.inner.Create(ctx, name)
}

func (s *RetryingStore) Put(ctx context.Context, name string, data []byte) error {
	return s.do(ctx, func() error {
		return s.inner.Put(ctx, name, data)
	})
}

func (s *RetryingStore) Delete(ctx context.Context, name string) error {
	return s.do(ctx, func() error {
		return s.inner.Delete(ctx, name)
	})
}

func (s *RetryingStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.do(ctx, func() error {
		var err error
		names, err = s.inner.List(ctx, prefix)
		return err
	})
	return names, err
}

func (s *RetryingStore) do(ctx context.Context, op func() error) error {
	delay := s.policy.BaseDelay

	var err error
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

// isTransient reports whether an error is worth retrying. Everything not
// known to be permanent is treated as transient, which matches the
// failure modes of remote object stores (timeouts, throttling, resets).
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF):
		return false
	}
	return true
}

// retryingBlob retries ReadAt and ReadRange. Both re-issue the backend
// request from the original offset, so a retry never observes partial
// state.
type retryingBlob struct {
	inner Blob
	store *RetryingStore
}

func (b *retryingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	var n int
	err := b.store.do(ctx, func() error {
		var err error
		n, err = b.inner.ReadAt(ctx, p, off)
		return err
	})
	return n, err
}

func (b *retryingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := b.store.do(ctx, func() error {
		var err error
		rc, err = b.inner.ReadRange(ctx, off, length)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (b *retryingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *retryingBlob) Close() error {
	return b.inner.Close()
}
