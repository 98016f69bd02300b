package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/korpus/internal/cache"
)

// fetchConcurrency bounds parallel backend reads per ReadAt so a cold
// cache cannot exhaust file descriptors or trip backend rate limits.
const fetchConcurrency = 16

// CachingStore wraps a BlobStore and serves reads block-wise through a
// BlockCache. Writes pass through; Put and Delete drop any cached blocks
// of the affected blob.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore layers a block cache over inner. A blockSize of zero or
// less means 4 KiB.
func NewCachingStore(inner BlobStore, blocks cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &CachingStore{inner: inner, cache: blocks, blockSize: blockSize}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{inner: b, cache: s.cache, name: name, blockSize: s.blockSize}, nil
}

// Create passes through. Created blobs only become readable after Close,
// so there is nothing to invalidate.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.dropBlob(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.dropBlob(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) dropBlob(name string) {
	s.cache.Invalidate(func(key cache.CacheKey) bool {
		return key.Kind == cache.CacheKindBlob && key.Path == name
	})
}

// CachingBlob is a read handle that satisfies reads from cached blocks,
// loading missing runs of blocks from the backend on demand.
type CachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *CachingBlob) Close() error { return b.inner.Close() }

func (b *CachingBlob) Size() int64 { return b.inner.Size() }

func (b *CachingBlob) key(block int64) cache.CacheKey {
	return cache.CacheKey{Kind: cache.CacheKindBlob, Path: b.name, Offset: uint64(block)}
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	first := off / b.blockSize
	last := (off + int64(len(p)) - 1) / b.blockSize

	// Load all missing blocks up front so contiguous misses coalesce into
	// single backend reads.
	if err := b.fill(ctx, first, last); err != nil {
		return 0, err
	}

	total := 0
	for block := first; block <= last; block++ {
		blockStart := block * b.blockSize

		// Intersection of this block with the requested byte range.
		lo := max(blockStart, off)
		hi := min(blockStart+b.blockSize, off+int64(len(p)))
		if hi <= lo {
			continue
		}

		data, err := b.fetchBlock(ctx, block)
		if err != nil {
			return total, err
		}

		src := lo - blockStart
		want := hi - lo
		if src >= int64(len(data)) {
			break // short tail block
		}
		if src+want > int64(len(data)) {
			want = int64(len(data)) - src
		}

		total += copy(p[lo-off:lo-off+want], data[src:])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// blockRun is a contiguous range of block indexes missing from the cache.
type blockRun struct {
	start, count int64
}

// missingRuns scans [first, last] and groups uncached blocks into runs.
func (b *CachingBlob) missingRuns(ctx context.Context, first, last int64) []blockRun {
	var runs []blockRun
	open := false

	for block := first; block <= last; block++ {
		if _, ok := b.cache.Get(ctx, b.key(block)); ok {
			open = false
			continue
		}
		if open {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, blockRun{start: block, count: 1})
			open = true
		}
	}
	return runs
}

// fill reads every missing run in [first, last] from the backend and
// caches the contained blocks. Runs are fetched in parallel.
func (b *CachingBlob) fill(ctx context.Context, first, last int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, run := range b.missingRuns(ctx, first, last) {
		g.Go(func() error {
			return b.fetchRun(ctx, run)
		})
	}
	return g.Wait()
}

// fetchRun reads one run of blocks and caches each block as a private
// copy so cached entries do not pin the whole run buffer.
func (b *CachingBlob) fetchRun(ctx context.Context, run blockRun) error {
	start := run.start * b.blockSize
	size := run.count * b.blockSize

	blobSize := b.Size()
	if start >= blobSize {
		return nil
	}
	if start+size > blobSize {
		size = blobSize - start
	}

	buf := make([]byte, size)
	n, err := b.inner.ReadAt(ctx, buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	buf = buf[:n]

	for i := int64(0); i < run.count; i++ {
		lo := i * b.blockSize
		if lo >= int64(len(buf)) {
			break
		}
		hi := min(lo+b.blockSize, int64(len(buf)))

		block := make([]byte, hi-lo)
		copy(block, buf[lo:hi])
		b.cache.Set(ctx, b.key(run.start+i), block)
	}
	return nil
}

// fetchBlock returns one block, reading it directly when a prior Set did
// not stick (cache full or budget denied).
func (b *CachingBlob) fetchBlock(ctx context.Context, block int64) ([]byte, error) {
	if data, ok := b.cache.Get(ctx, b.key(block)); ok {
		return data, nil
	}

	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, block*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	buf = buf[:n]
	if n > 0 {
		b.cache.Set(ctx, b.key(block), buf)
	}
	return buf, nil
}

// ReadRange serves ranged reads through the block cache via ReadAt.
func (b *CachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= b.Size() {
		return nil, io.EOF
	}
	return io.NopCloser(&cachedRangeReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// cachedRangeReader adapts CachingBlob.ReadAt to io.Reader under a bound
// context.
type cachedRangeReader struct {
	blob  *CachingBlob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *cachedRangeReader) Read(p []byte) (n int, err error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	return n, err
}
