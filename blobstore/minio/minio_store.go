package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/korpus/blobstore"
)

// Store is a blobstore.BlobStore backed by MinIO or any S3-compatible
// object store reachable through the minio client.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a store on the given bucket. rootPrefix is prepended
// to every blob name, so several databases can share one bucket.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: rootPrefix}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// isNotFound reports whether err means the object does not exist.
func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// rangeOpts builds the byte-range header for [off, off+length) clamped to
// the object size.
func rangeOpts(off, length, size int64) (minio.GetObjectOptions, error) {
	opts := minio.GetObjectOptions{}
	end := min(off+length-1, size-1)
	err := opts.SetRange(off, end)
	return opts, err
}

// Open stats the object and returns a ranged-read handle.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	return &objectBlob{client: s.client, bucket: s.bucket, key: key, size: info.Size}, nil
}

// Put uploads data as one object. Object stores replace atomically.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Create starts a streaming upload through a pipe. The object becomes
// visible once Close returns without error.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	up := &pipeUpload{pw: pw, done: make(chan error, 1)}

	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.key(name), pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		up.done <- err
	}()

	return up, nil
}

// Delete removes an object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all blob names under prefix, with the store's root prefix
// stripped, in lexicographic order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

type objectBlob struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (b *objectBlob) Size() int64 { return b.size }

func (b *objectBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}

	opts, err := rangeOpts(off, int64(len(p)), b.size)
	if err != nil {
		return 0, err
	}

	obj, err := b.client.GetObject(ctx, b.bucket, b.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	want := min(int64(len(p)), b.size-off)
	n, err := io.ReadFull(obj, p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		// Request extended past the object end.
		return n, io.EOF
	}
	return n, nil
}

func (b *objectBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= b.size {
		return nil, io.EOF
	}

	opts, err := rangeOpts(off, length, b.size)
	if err != nil {
		return nil, err
	}
	return b.client.GetObject(ctx, b.bucket, b.key, opts)
}

func (b *objectBlob) Close() error { return nil }

// pipeUpload feeds a background PutObject through an io.Pipe. Close
// finishes the upload and reports its outcome.
type pipeUpload struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (u *pipeUpload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *pipeUpload) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return errors.New("already closed")
	}
	if err := u.pw.Close(); err != nil {
		return err
	}
	return <-u.done
}

// Abort cancels the upload; the object never becomes visible.
func (u *pipeUpload) Abort() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	return u.pw.CloseWithError(errors.New("upload aborted"))
}

// Sync is a no-op; the pipe streams straight into the upload.
func (u *pipeUpload) Sync() error { return nil }
