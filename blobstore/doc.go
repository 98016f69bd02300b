// Package blobstore abstracts the storage backend that holds snapshot
// blobs and catalog files.
//
// A BlobStore reads and writes named, immutable blobs. Snapshots are
// written once under a fresh name and later deleted as a whole, which
// keeps the interface small: no partial updates, no append.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem; reads are memory-mapped, writes are
//     temp-file plus atomic rename
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with range reads and parallel multipart uploads
//   - minio.Store: any S3-compatible endpoint via the MinIO client
//
// # Composition
//
// Stores wrap cleanly. A remote backend is typically layered as
//
//	store := blobstore.NewCachingStore(
//	    blobstore.NewRetryingStore(s3store, blobstore.DefaultRetryPolicy),
//	    blockCache, 64<<10,
//	)
//
// so cache misses hit the backend with bounded retries while cache hits
// never leave memory.
//
// # Custom Implementations
//
// Implement BlobStore to plug in another backend. Cloud backends should
// serve ReadRange with a ranged request instead of a full download, and
// may implement Mappable when they can expose blob content without
// copying. Missing blobs must be reported with an error satisfying
// errors.Is(err, ErrNotFound).
package blobstore
