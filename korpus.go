// Package korpus provides an embedded multi-tenant vector database for Go.
//
// Korpus manages named collections of documents. Each collection combines:
//
//   - HNSW approximate nearest neighbor search (L2, cosine, dot product)
//   - BM25 keyword search over document text
//   - Hybrid retrieval fusing both rankings with Reciprocal Rank Fusion
//   - Mongo-style metadata filtering ($eq, $ne, $gt, $in, $and, $or, ...)
//   - Near-duplicate suppression at ingestion time
//   - Tombstone deletes with on-demand compaction
//
// Persistence is snapshot-based: Save writes every collection as sectioned,
// optionally compressed snapshot blobs and then commits a numbered catalog
// manifest, flipping the CURRENT pointer last so a crash never corrupts the
// previous generation. Blob stores include local disk, S3, MinIO and
// in-memory; retries, block caching and IO rate limiting are layered on via
// options.
//
// # Quick Start
//
// Create a database with a local blob store:
//
//	ctx := context.Background()
//	db, err := korpus.New(korpus.WithLocalStore("./data"))
//	if err != nil {
//		panic(err)
//	}
//	defer db.Close()
//
// Create a collection and ingest documents:
//
//	col, err := db.CreateCollection(ctx, "articles", korpus.CollectionConfig{
//		Dimension: 384,
//		Metric:    distance.MetricCosine,
//	})
//	if err != nil {
//		panic(err)
//	}
//
//	res, err := col.Add(ctx, []korpus.Document{
//		{ID: "a-1", Vector: vec1, Text: "solar panel efficiency", Metadata: metadata.Document{
//			"lang": metadata.String("en"),
//			"year": metadata.Int(2024),
//		}},
//		{ID: "a-2", Vector: vec2, Text: "wind turbine maintenance"},
//	})
//
// Query with hybrid retrieval and a metadata filter:
//
//	hits, err := col.Query(ctx, korpus.Query{
//		Vector: queryVec,
//		Text:   "renewable energy",
//		K:      10,
//		Filter: map[string]any{"lang": "en", "year": map[string]any{"$gte": 2020}},
//	})
//
// Persist the catalog and reopen it later:
//
//	if err := db.Save(ctx); err != nil {
//		panic(err)
//	}
//
//	db2, err := korpus.Open(ctx, korpus.WithLocalStore("./data"))
//
// # Embedders
//
// With an Embedder configured, documents and queries can be given as text
// alone; korpus fills in the vectors:
//
//	db, _ := korpus.New(korpus.WithEmbedder(myEmbedder))
//
// # Remote Storage
//
// Any BlobStore implementation works as a backend. The blobstore/s3 and
// blobstore/minio packages provide object store backends; combine them with
// retries and a block cache for read-heavy workloads:
//
//	store := s3.NewStore(client, "my-bucket", "korpus/")
//	db, _ := korpus.Open(ctx,
//		korpus.WithBlobStore(store),
//		korpus.WithRetry(blobstore.DefaultRetryPolicy),
//		korpus.WithBlockCache(256<<20),
//	)
package korpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/engine"
	"github.com/hupe1980/korpus/manifest"
)

// CollectionConfig fixes the shape of a collection at creation time.
// Dimension and Metric are immutable for the life of the collection.
type CollectionConfig struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// Metric selects the distance metric. Defaults to distance.MetricL2.
	Metric distance.Metric

	// M is the HNSW connectivity parameter. Zero means the default (16).
	M int

	// EFConstruction bounds the candidate list during inserts. Zero means
	// the default (200).
	EFConstruction int

	// EFSearch bounds the candidate list during searches unless a query
	// overrides it. Zero means the default (50).
	EFSearch int

	// Seed seeds the graph's level generator. Zero means the default.
	Seed int64

	// DedupeWindow is the number of recently accepted documents probed by
	// near-duplicate detection in its recent scope. Zero means 128.
	DedupeWindow int

	// CompactionThreshold is the tombstone ratio above which
	// NeedsCompaction reports true. Zero means 0.25.
	CompactionThreshold float64
}

func (c CollectionConfig) engineConfig() engine.Config {
	return engine.Config{
		Dimension:           c.Dimension,
		Metric:              c.Metric,
		M:                   c.M,
		EFConstruction:      c.EFConstruction,
		EFSearch:            c.EFSearch,
		Seed:                c.Seed,
		DedupeWindow:        c.DedupeWindow,
		CompactionThreshold: c.CompactionThreshold,
	}
}

// CollectionInfo describes a registered collection.
type CollectionInfo struct {
	Name       string
	ID         string
	Dimension  int
	Metric     distance.Metric
	CreatedAt  time.Time
	Documents  int
	Tombstones int
}

// DB is a registry of named collections with snapshot persistence.
//
// All methods are safe for concurrent use.
type DB struct {
	opts      options
	store     blobstore.BlobStore
	manifests *manifest.Store

	mu          sync.RWMutex
	collections map[string]*Collection
	catalog     *manifest.Manifest
	closed      bool

	// saveMu serializes Save and Prune so snapshot keys computed from the
	// next generation number match the generation Commit assigns.
	saveMu sync.Mutex
}

// New creates an empty in-memory database. Configure a blob store to enable
// Save; use Open instead to also load a previously saved catalog.
func New(optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	db := &DB{
		opts:        o,
		store:       o.buildStore(),
		collections: make(map[string]*Collection),
		catalog:     manifest.New(),
	}
	if db.store != nil {
		db.manifests = manifest.NewStore(db.store)
	}
	return db, nil
}

// Open creates a database and loads the saved catalog from the configured
// blob store. A store without a catalog yields an empty database.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	db, err := New(optFns...)
	if err != nil {
		return nil, err
	}
	if db.store == nil {
		return nil, fmt.Errorf("%w: no blob store configured", ErrInvalidArgument)
	}
	if err := db.load(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// engineOptions passes database-wide collaborators down to a collection
// engine.
func (db *DB) engineOptions(o *engine.Options) {
	o.Controller = db.opts.controller
}

// load restores all collections from the CURRENT catalog generation.
func (db *DB) load(ctx context.Context) error {
	m, err := db.manifests.Load(ctx)
	if errors.Is(err, manifest.ErrNotFound) {
		return nil
	}
	if err != nil {
		err = translateError(storageErr("load catalog", manifest.CurrentName, err))
		db.opts.logger.LogRecovery(ctx, 0, 0, err)
		return err
	}

	collections := make(map[string]*Collection, len(m.Collections))
	for _, entry := range m.Collections {
		col, err := db.loadCollection(ctx, entry)
		if err != nil {
			db.opts.logger.LogRecovery(ctx, m.Generation, len(collections), err)
			for _, c := range collections {
				_ = c.eng.Close()
			}
			return err
		}
		collections[entry.Name] = col
	}

	db.mu.Lock()
	db.collections = collections
	db.catalog = m
	db.mu.Unlock()

	db.opts.logger.LogRecovery(ctx, m.Generation, len(collections), nil)
	return nil
}

func (db *DB) loadCollection(ctx context.Context, entry manifest.CollectionEntry) (*Collection, error) {
	metric, err := distance.ParseMetric(entry.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q: %v", ErrInvalidArgument, entry.Name, err)
	}
	cfg := engine.Config{Dimension: entry.Dimension, Metric: metric}

	var eng *engine.Engine
	if entry.Graph == "" {
		// Registered but never persisted with data; start it empty.
		eng, err = engine.New(cfg, db.engineOptions)
	} else {
		keys := engine.SnapshotKeys{
			Graph:      entry.Graph,
			Documents:  entry.Documents,
			Tombstones: entry.Tombstones,
		}
		eng, err = engine.Load(ctx, db.store, keys, cfg, db.engineOptions)
	}
	if err != nil {
		return nil, translateError(storageErr("load collection", entry.Name, err))
	}

	return &Collection{
		name:      entry.Name,
		id:        entry.ID,
		createdAt: entry.CreatedAt,
		eng:       eng,
		db:        db,
	}, nil
}

// CreateCollection registers a new collection. The name must be non-empty
// and unused.
func (db *DB) CreateCollection(ctx context.Context, name string, cfg CollectionConfig) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidArgument)
	}
	if _, ok := db.collections[name]; ok {
		return nil, fmt.Errorf("%w: collection %q", ErrAlreadyExists, name)
	}

	col, err := db.createLocked(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	return col, nil
}

// GetOrCreateCollection returns the named collection, creating it when
// absent. An existing collection whose dimension or metric differs from cfg
// yields ErrConfigConflict.
func (db *DB) GetOrCreateCollection(ctx context.Context, name string, cfg CollectionConfig) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidArgument)
	}

	if col, ok := db.collections[name]; ok {
		have := col.eng.Config()
		if have.Dimension != cfg.Dimension {
			return nil, fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrConfigConflict, name, have.Dimension, cfg.Dimension)
		}
		if have.Metric != cfg.Metric {
			return nil, fmt.Errorf("%w: collection %q uses metric %s, requested %s",
				ErrConfigConflict, name, have.Metric, cfg.Metric)
		}
		return col, nil
	}

	return db.createLocked(ctx, name, cfg)
}

func (db *DB) createLocked(ctx context.Context, name string, cfg CollectionConfig) (*Collection, error) {
	eng, err := engine.New(cfg.engineConfig(), db.engineOptions)
	if err != nil {
		return nil, translateError(err)
	}

	col := &Collection{
		name:      name,
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		eng:       eng,
		db:        db,
	}
	db.collections[name] = col

	db.opts.logger.InfoContext(ctx, "collection created",
		"collection", name,
		"id", col.id,
		"dimension", cfg.Dimension,
		"metric", cfg.Metric.String(),
	)
	return col, nil
}

// Collection returns the named collection.
func (db *DB) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	col, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	return col, nil
}

// DeleteCollection drops the named collection and reports whether it
// existed. Dropping an absent collection is not an error. Snapshot blobs of
// dropped collections are reclaimed by Prune after the next Save.
func (db *DB) DeleteCollection(ctx context.Context, name string) (bool, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return false, ErrClosed
	}
	col, ok := db.collections[name]
	if !ok {
		db.mu.Unlock()
		return false, nil
	}
	delete(db.collections, name)
	db.mu.Unlock()

	err := col.eng.Close()
	db.opts.logger.InfoContext(ctx, "collection dropped", "collection", name, "id", col.id)
	return true, translateError(err)
}

// ListCollections returns all registered collections ordered by name.
func (db *DB) ListCollections() []CollectionInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	infos := make([]CollectionInfo, 0, len(db.collections))
	for _, col := range db.collections {
		cfg := col.eng.Config()
		infos = append(infos, CollectionInfo{
			Name:       col.name,
			ID:         col.id,
			Dimension:  cfg.Dimension,
			Metric:     cfg.Metric,
			CreatedAt:  col.createdAt,
			Documents:  col.eng.Count(),
			Tombstones: col.eng.Tombstones(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Save snapshots every collection and commits a new catalog generation.
//
// Collections are persisted in parallel; only after all snapshot blobs have
// been written is the manifest committed and the CURRENT pointer flipped.
// A failed Save leaves at most orphaned blobs behind and the previous
// generation intact.
func (db *DB) Save(ctx context.Context) error {
	start := time.Now()
	gen, n, err := db.save(ctx)
	db.opts.logger.LogSnapshot(ctx, gen, n, err)
	db.opts.metricsCollector.RecordSnapshot(time.Since(start), err)
	return err
}

func (db *DB) save(ctx context.Context) (uint64, int, error) {
	if db.store == nil {
		return 0, 0, fmt.Errorf("%w: no blob store configured", ErrInvalidArgument)
	}

	db.saveMu.Lock()
	defer db.saveMu.Unlock()

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return 0, 0, ErrClosed
	}
	cols := make([]*Collection, 0, len(db.collections))
	for _, col := range db.collections {
		cols = append(cols, col)
	}
	gen := db.catalog.Generation + 1
	db.mu.RUnlock()

	sort.Slice(cols, func(i, j int) bool { return cols[i].name < cols[j].name })

	entries := make([]manifest.CollectionEntry, len(cols))
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range cols {
		g.Go(func() error {
			if rc := db.opts.controller; rc != nil {
				if err := rc.AcquireBackground(gctx); err != nil {
					return err
				}
				defer rc.ReleaseBackground()
			}

			keys := db.snapshotKeys(col.id, gen)
			err := col.eng.Persist(gctx, db.store, keys, func(o *engine.SnapshotOptions) {
				o.Codec = db.opts.codec
				o.Compression = db.opts.compression
			})
			if err != nil {
				return translateError(storageErr("persist collection", col.name, err))
			}

			cfg := col.eng.Config()
			entries[i] = manifest.CollectionEntry{
				Name:       col.name,
				ID:         col.id,
				Dimension:  cfg.Dimension,
				Metric:     metricName(cfg.Metric),
				CreatedAt:  col.createdAt,
				Graph:      keys.Graph,
				Documents:  keys.Documents,
				Tombstones: keys.Tombstones,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return gen, len(cols), err
	}

	next := &manifest.Manifest{
		Generation:  gen - 1,
		Collections: entries,
	}
	if err := db.manifests.Commit(ctx, next); err != nil {
		return gen, len(cols), translateError(storageErr("commit catalog", manifest.Filename(gen), err))
	}

	db.mu.Lock()
	db.catalog = next
	db.mu.Unlock()
	return next.Generation, len(entries), nil
}

// snapshotKeys returns the blob keys of one collection's snapshot within
// one catalog generation. Keys are versioned by generation so a failed Save
// never touches blobs a committed generation references.
func (db *DB) snapshotKeys(collectionID string, generation uint64) engine.SnapshotKeys {
	prefix := fmt.Sprintf("%s/%s/%06d", db.opts.snapshotPrefix, collectionID, generation)
	return engine.SnapshotKeys{
		Graph:      prefix + "/graph",
		Documents:  prefix + "/documents",
		Tombstones: prefix + "/tombstones",
	}
}

// Prune deletes all but the newest keep catalog generations, then sweeps
// snapshot blobs no kept generation references. It returns the number of
// blobs deleted.
func (db *DB) Prune(ctx context.Context, keep int) (int, error) {
	if db.store == nil {
		return 0, fmt.Errorf("%w: no blob store configured", ErrInvalidArgument)
	}

	db.saveMu.Lock()
	defer db.saveMu.Unlock()

	removed, err := db.manifests.Prune(ctx, keep)
	if err != nil {
		return removed, translateError(storageErr("prune catalog", manifest.ManifestPrefix, err))
	}

	referenced, err := db.referencedBlobs(ctx)
	if err != nil {
		return removed, err
	}

	names, err := db.store.List(ctx, db.opts.snapshotPrefix+"/")
	if err != nil {
		return removed, translateError(storageErr("list snapshots", db.opts.snapshotPrefix, err))
	}
	for _, name := range names {
		if referenced[name] {
			continue
		}
		if err := db.store.Delete(ctx, name); err != nil {
			return removed, translateError(storageErr("delete snapshot", name, err))
		}
		removed++
	}
	return removed, nil
}

// referencedBlobs collects the snapshot keys of every kept generation.
func (db *DB) referencedBlobs(ctx context.Context) (map[string]bool, error) {
	gens, err := db.manifests.Generations(ctx)
	if err != nil {
		return nil, translateError(storageErr("list catalog", manifest.ManifestPrefix, err))
	}
	referenced := make(map[string]bool)
	for _, gen := range gens {
		m, err := db.manifests.LoadGeneration(ctx, gen)
		if err != nil {
			return nil, translateError(storageErr("load catalog", manifest.Filename(gen), err))
		}
		for _, key := range m.BlobKeys() {
			referenced[key] = true
		}
	}
	return referenced, nil
}

// Close closes every collection. In-flight operations are drained first.
// Unsaved changes are lost; call Save beforehand to keep them.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	for name, col := range db.collections {
		if err := col.eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// metricName renders a metric in the form ParseMetric accepts.
func metricName(m distance.Metric) string {
	return strings.ToLower(m.String())
}
