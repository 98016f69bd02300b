package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/hnsw"
	"github.com/hupe1980/korpus/idmap"
	"github.com/hupe1980/korpus/lexical"
	"github.com/hupe1980/korpus/lexical/bm25"
	"github.com/hupe1980/korpus/metadata"
	"github.com/hupe1980/korpus/resource"
)

// Config carries the immutable parameters of one collection engine.
type Config struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// Metric selects the distance metric. Defaults to MetricL2.
	Metric distance.Metric

	// M is the graph connectivity parameter. Zero means the hnsw default.
	M int

	// EFConstruction bounds the candidate list during inserts. Zero means
	// the hnsw default.
	EFConstruction int

	// EFSearch bounds the candidate list during searches unless a query
	// overrides it. Zero means the hnsw default.
	EFSearch int

	// Seed seeds the graph's level generator. Zero means the hnsw default.
	Seed int64

	// DedupeWindow is the number of recently accepted documents probed by
	// near-duplicate detection in its recent scope. Zero means 128.
	DedupeWindow int

	// CompactionThreshold is the tombstone ratio above which NeedsCompaction
	// reports true. Zero means 0.25.
	CompactionThreshold float64
}

const (
	defaultDedupeWindow        = 128
	defaultCompactionThreshold = 0.25
)

func (c Config) withDefaults() Config {
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = defaultDedupeWindow
	}
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = defaultCompactionThreshold
	}

	return c
}

// Engine is the core of one collection. It keeps the identifier map, the
// proximity graph, the metadata store and the keyword index consistent with
// each other.
//
// All methods are safe for concurrent use. Searches and ingestion run
// concurrently; Compact, Snapshot and Close drain the collection first.
type Engine struct {
	cfg  Config
	dist distance.Func
	gate *gate
	ctrl *resource.Controller

	ids   *idmap.Map
	graph *hnsw.Graph
	meta  *metadata.Store
	text  lexical.Index

	// mu guards texts and recent. The component stores above carry their own
	// locks.
	mu     sync.RWMutex
	texts  map[uint32]string
	recent []uint32
}

// Options configures optional engine collaborators.
type Options struct {
	// TextIndex replaces the built-in BM25 keyword index. The engine owns
	// the index and closes it on Close.
	TextIndex lexical.Index

	// Controller paces snapshot IO: Load reads and Persist writes wait on
	// its IO budget. Persist calls may override it per snapshot.
	Controller *resource.Controller
}

// New creates an empty collection engine.
func New(cfg Config, optFns ...func(o *Options)) (*Engine, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidArgument, cfg.Dimension)
	}

	cfg = cfg.withDefaults()

	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	graph, err := hnsw.New(cfg.Dimension, func(o *hnsw.Options) {
		if cfg.M > 0 {
			o.M = cfg.M
		}
		if cfg.EFConstruction > 0 {
			o.EFConstruction = cfg.EFConstruction
		}
		if cfg.EFSearch > 0 {
			o.EFSearch = cfg.EFSearch
		}
		if cfg.Seed != 0 {
			o.Seed = cfg.Seed
		}
		o.Distance = dist
	})
	if err != nil {
		return nil, err
	}

	text := opts.TextIndex
	if text == nil {
		text = bm25.New()
	}

	return &Engine{
		cfg:   cfg,
		dist:  dist,
		gate:  newGate(),
		ctrl:  opts.Controller,
		ids:   idmap.New(),
		graph: graph,
		meta:  metadata.NewStore(),
		text:  text,
		texts: make(map[uint32]string),
	}, nil
}

// Config returns the engine's configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Count returns the number of live documents.
func (e *Engine) Count() int {
	return e.ids.Len()
}

// Tombstones returns the number of tombstoned slots awaiting compaction.
func (e *Engine) Tombstones() int {
	return e.graph.Tombstones()
}

// Get returns the stored document for an external id, vector included.
func (e *Engine) Get(ctx context.Context, id string) (*Document, error) {
	if err := e.gate.enter(); err != nil {
		return nil, err
	}
	defer e.gate.exit()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot, err := e.ids.Resolve(id)
	if err != nil {
		if errors.Is(err, idmap.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	vec, ok := e.graph.Vector(slot)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	doc := &Document{ID: id, Vector: slices.Clone(vec)}

	if m, ok := e.meta.Get(slot); ok {
		doc.Metadata = m.Clone()
	}

	e.mu.RLock()
	doc.Text = e.texts[slot]
	e.mu.RUnlock()

	return doc, nil
}

// Delete tombstones the given external ids and returns how many documents
// were actually removed. Unknown ids are skipped, which makes delete retries
// idempotent.
func (e *Engine) Delete(ctx context.Context, ids ...string) (int, error) {
	if err := e.gate.enter(); err != nil {
		return 0, err
	}
	defer e.gate.exit()

	removed := 0

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if err := e.deleteOne(id); err != nil {
			if errors.Is(err, idmap.ErrNotFound) {
				continue
			}
			return removed, err
		}

		removed++
	}

	return removed, nil
}

// deleteOne releases the id's slot and removes all slot-keyed state. The
// graph keeps the node as a tombstoned routing bridge until compaction.
func (e *Engine) deleteOne(id string) error {
	slot, err := e.ids.Release(id)
	if err != nil {
		return err
	}

	e.graph.MarkDeleted(slot)
	e.meta.Delete(slot)

	if err := e.text.Delete(id); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.texts, slot)
	e.mu.Unlock()

	return nil
}

// Close drains in-flight operations and shuts the engine down. Operations
// after Close fail with ErrClosed.
func (e *Engine) Close() error {
	e.gate.close()

	return e.text.Close()
}
