package cache

import "context"

// CacheKind separates key spaces so unrelated block types never collide
// and can be invalidated independently.
type CacheKind uint8

const (
	CacheKindUnknown CacheKind = iota
	// CacheKindBlob identifies blocks read from a blob store.
	CacheKindBlob
)

// CacheKey identifies a cached block. Keys are stable across processes:
// snapshot blobs are written once and never modified in place, so the
// same path and offset always refer to the same immutable bytes.
type CacheKey struct {
	Kind CacheKind
	// Path identifies the source blob.
	Path string
	// Offset is a logical block identifier within the source (byte offset
	// or block index).
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; caller must treat b as immutable.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources (e.g. background workers).
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
