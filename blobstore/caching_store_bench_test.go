package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/korpus/internal/cache"
)

// zeroBackend serves zero bytes of any size and counts backend reads.
type zeroBackend struct {
	reads int
}

func (z *zeroBackend) Open(ctx context.Context, name string) (Blob, error) {
	return &zeroBlob{backend: z, size: 1 << 20}, nil
}

func (z *zeroBackend) Create(ctx context.Context, name string) (WritableBlob, error) {
	return nil, nil
}
func (z *zeroBackend) Put(ctx context.Context, name string, data []byte) error   { return nil }
func (z *zeroBackend) Delete(ctx context.Context, name string) error             { return nil }
func (z *zeroBackend) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }

type zeroBlob struct {
	backend *zeroBackend
	size    int64
}

func (z *zeroBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	z.backend.reads++
	clear(p)
	return len(p), nil
}

func (z *zeroBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return nil, nil
}

func (z *zeroBlob) Size() int64  { return z.size }
func (z *zeroBlob) Close() error { return nil }

func TestCachingStore_Coalescing(t *testing.T) {
	backend := &zeroBackend{}
	store := NewCachingStore(backend, cache.NewLRUBlockCache(1<<20, nil), 1024)

	ctx := context.Background()
	blob, err := store.Open(ctx, "vectors")
	require.NoError(t, err)

	// A cold read spanning 10 blocks must hit the backend once, not 10 times.
	buf := make([]byte, 10*1024)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.reads, "run of missing blocks should coalesce")

	// Warm read: no backend traffic at all.
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.reads)
}

func BenchmarkCachingBlob_ReadAt_Warm(b *testing.B) {
	store := NewCachingStore(&zeroBackend{}, cache.NewShardedLRUBlockCache(64<<20, nil), 4096)

	ctx := context.Background()
	blob, err := store.Open(ctx, "bench")
	if err != nil {
		b.Fatal(err)
	}

	buf := make([]byte, 4096)
	if _, err := blob.ReadAt(ctx, buf, 0); err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		if _, err := blob.ReadAt(ctx, buf, 0); err != nil {
			b.Fatal(err)
		}
	}
}
