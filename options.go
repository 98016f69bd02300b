package korpus

import (
	"log/slog"

	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/codec"
	"github.com/hupe1980/korpus/internal/cache"
	"github.com/hupe1980/korpus/resource"
	"github.com/hupe1980/korpus/snapshot"
)

const defaultCacheBlockSize = 256 << 10

type options struct {
	store            blobstore.BlobStore
	retryPolicy      *blobstore.RetryPolicy
	cacheCapacity    int64
	cacheBlockSize   int64
	controller       *resource.Controller
	codec            codec.Codec
	compression      snapshot.Compression
	snapshotPrefix   string
	embedder         Embedder
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures database construction.
type Option func(*options)

// WithBlobStore configures the blob store backing Save, Open and Prune.
// Without a store the database is purely in-memory.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLocalStore configures a filesystem blob store rooted at the given
// directory. Convenience wrapper for WithBlobStore(blobstore.NewLocalStore(root)).
func WithLocalStore(root string) Option {
	return func(o *options) {
		o.store = blobstore.NewLocalStore(root)
	}
}

// WithRetry wraps the blob store so transient backend failures are retried
// with exponential backoff. Use blobstore.DefaultRetryPolicy for sensible
// defaults.
func WithRetry(policy blobstore.RetryPolicy) Option {
	return func(o *options) {
		o.retryPolicy = &policy
	}
}

// WithBlockCache adds a sharded LRU block cache of the given capacity in
// bytes on top of the blob store. Blocks are 256KB; on remote stores the
// cache turns repeated snapshot reads into memory hits.
func WithBlockCache(capacityBytes int64) Option {
	return func(o *options) {
		o.cacheCapacity = capacityBytes
	}
}

// WithResourceController configures admission control for background work,
// block cache memory accounting and snapshot IO rate limiting.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithCodec configures the codec used for snapshot document tables and
// catalog manifests.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the block compression applied to snapshot
// sections. The default is snapshot.CompressionZSTD.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSnapshotPrefix configures the blob key prefix under which collection
// snapshots are written. The default is "snapshots".
func WithSnapshotPrefix(prefix string) Option {
	return func(o *options) {
		o.snapshotPrefix = prefix
	}
}

// WithEmbedder configures an embedder. When set, Add fills in missing
// vectors from document text and Query embeds the query text when no query
// vector is given.
func WithEmbedder(e Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &korpus.BasicMetricsCollector{}
//	db, _ := korpus.New(korpus.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := korpus.NewJSONLogger(slog.LevelInfo)
//	db, _ := korpus.New(korpus.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		compression:      snapshot.CompressionZSTD,
		snapshotPrefix:   "snapshots",
		cacheBlockSize:   defaultCacheBlockSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

// buildStore layers the configured retry and cache wrappers around the base
// store. The cache sits outermost so cached reads skip the retry layer.
func (o options) buildStore() blobstore.BlobStore {
	store := o.store
	if store == nil {
		return nil
	}
	if o.retryPolicy != nil {
		store = blobstore.NewRetryingStore(store, *o.retryPolicy)
	}
	if o.cacheCapacity > 0 {
		blocks := cache.NewShardedLRUBlockCache(o.cacheCapacity, o.controller)
		store = blobstore.NewCachingStore(store, blocks, o.cacheBlockSize)
	}
	return store
}
