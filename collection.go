package korpus

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/korpus/engine"
	"github.com/hupe1980/korpus/metadata"
)

// Core document and result types are shared with the engine package.
type (
	// Document is one ingestable unit: an external id with a vector and
	// optional text and metadata.
	Document = engine.Document

	// Result is one query hit.
	Result = engine.ResultEntry

	// BatchResult partitions an ingested batch into accepted, suppressed
	// and failed documents.
	BatchResult = engine.BatchResult

	// FailedDocument names a document rejected during ingestion.
	FailedDocument = engine.FailedDocument

	// AddOptions controls dedupe and upsert behavior of Add.
	AddOptions = engine.AddOptions

	// DedupeScope selects which documents near-duplicate detection probes.
	DedupeScope = engine.DedupeScope

	// CompactionStats reports the outcome of a compaction run.
	CompactionStats = engine.CompactionStats
)

const (
	// DedupeRecent probes a sliding window of recently accepted documents.
	DedupeRecent = engine.DedupeRecent
	// DedupeFull probes the whole collection through the vector index.
	DedupeFull = engine.DedupeFull
)

// Query describes one retrieval request. At least one of Vector and Text
// must be set; with both, the vector and keyword rankings are fused.
type Query struct {
	// Vector is the query vector. Optional when Text is set.
	Vector []float32

	// Text is the keyword query. With an embedder configured it is also
	// embedded into a query vector unless Vector is given or KeywordOnly
	// is set.
	Text string

	// K is the number of results to return. Required.
	K int

	// Filter restricts results by metadata. Keys map to equality matches
	// or operator objects ({"$gte": 2020}); $and and $or compose.
	Filter map[string]any

	// EF overrides the collection's search beam width when positive.
	EF int

	// RRFConstant dampens rank contributions during fusion. Zero means 60.
	RRFConstant float64

	// OverFetchFactor widens filtered searches. Zero means 2.
	OverFetchFactor int

	// KeywordOnly skips vector search even when an embedder could supply
	// a query vector.
	KeywordOnly bool
}

// Collection is a handle on one named collection. Handles stay valid until
// the collection is dropped or the database is closed.
type Collection struct {
	name      string
	id        string
	createdAt time.Time
	eng       *engine.Engine
	db        *DB
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// ID returns the stable collection id used in snapshot blob keys.
func (c *Collection) ID() string { return c.id }

// CreatedAt returns the collection creation time.
func (c *Collection) CreatedAt() time.Time { return c.createdAt }

// Config returns the collection configuration with defaults applied.
func (c *Collection) Config() CollectionConfig {
	cfg := c.eng.Config()
	return CollectionConfig{
		Dimension:           cfg.Dimension,
		Metric:              cfg.Metric,
		M:                   cfg.M,
		EFConstruction:      cfg.EFConstruction,
		EFSearch:            cfg.EFSearch,
		Seed:                cfg.Seed,
		DedupeWindow:        cfg.DedupeWindow,
		CompactionThreshold: cfg.CompactionThreshold,
	}
}

// Count returns the number of live documents.
func (c *Collection) Count() int { return c.eng.Count() }

// Tombstones returns the number of deleted slots awaiting compaction.
func (c *Collection) Tombstones() int { return c.eng.Tombstones() }

// Add ingests a batch of documents. The whole batch is validated before any
// document is applied; a validation failure leaves the collection untouched.
// Per-document outcomes are reported in the BatchResult.
//
// With an embedder configured, documents without a vector are embedded from
// their text first.
func (c *Collection) Add(ctx context.Context, docs []Document, optFns ...func(o *AddOptions)) (*BatchResult, error) {
	start := time.Now()
	res, err := c.add(ctx, docs, optFns)

	var accepted, duplicates, failed int
	if res != nil {
		accepted = len(res.Succeeded)
		duplicates = len(res.Duplicates)
		failed = len(res.Failed)
	}
	c.db.opts.logger.LogAdd(ctx, c.name, accepted, duplicates, failed, err)
	c.db.opts.metricsCollector.RecordAdd(accepted, duplicates, failed, time.Since(start))
	return res, err
}

func (c *Collection) add(ctx context.Context, docs []Document, optFns []func(o *AddOptions)) (*BatchResult, error) {
	if c.db.opts.embedder != nil {
		embedded, err := c.embedMissing(ctx, docs)
		if err != nil {
			return nil, err
		}
		docs = embedded
	}
	res, err := c.eng.AddBatch(ctx, docs, optFns...)
	return res, translateError(err)
}

// embedMissing fills in vectors for documents that carry text only. The
// caller's slice is left untouched.
func (c *Collection) embedMissing(ctx context.Context, docs []Document) ([]Document, error) {
	var idx []int
	var texts []string
	for i := range docs {
		if len(docs[i].Vector) == 0 && docs[i].Text != "" {
			idx = append(idx, i)
			texts = append(texts, docs[i].Text)
		}
	}
	if len(idx) == 0 {
		return docs, nil
	}

	vecs, err := c.db.opts.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d documents: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			ErrInvalidArgument, len(vecs), len(texts))
	}

	docs = slices.Clone(docs)
	for j, i := range idx {
		docs[i].Vector = vecs[j]
	}
	return docs, nil
}

// AddOne ingests a single document. A document suppressed as a near
// duplicate is not an error; use Add for per-document reporting.
func (c *Collection) AddOne(ctx context.Context, doc Document, optFns ...func(o *AddOptions)) error {
	res, err := c.Add(ctx, []Document{doc}, optFns...)
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, res.Failed[0].Reason)
	}
	return nil
}

// Query runs a hybrid retrieval and returns up to q.K results, best first.
func (c *Collection) Query(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	res, err := c.query(ctx, q)
	c.db.opts.logger.LogQuery(ctx, c.name, q.K, len(res), err)
	c.db.opts.metricsCollector.RecordQuery(q.K, time.Since(start), err)
	return res, err
}

func (c *Collection) query(ctx context.Context, q Query) ([]Result, error) {
	req := engine.QueryRequest{
		Vector:          q.Vector,
		Text:            q.Text,
		K:               q.K,
		EF:              q.EF,
		RRFConstant:     q.RRFConstant,
		OverFetchFactor: q.OverFetchFactor,
	}

	if q.Filter != nil {
		pred, err := metadata.ParsePredicate(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		req.Filter = pred
	}

	switch {
	case q.KeywordOnly:
		req.Vector = nil
	case len(req.Vector) == 0 && q.Text != "" && c.db.opts.embedder != nil:
		vecs, err := c.db.opts.embedder.Embed(ctx, []string{q.Text})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for one text",
				ErrInvalidArgument, len(vecs))
		}
		req.Vector = vecs[0]
	}

	res, err := c.eng.Query(ctx, req)
	return res, translateError(err)
}

// QueryBatch runs several queries in parallel and returns their results in
// input order. The first failure cancels the remaining queries.
func (c *Collection) QueryBatch(ctx context.Context, queries []Query) ([][]Result, error) {
	results := make([][]Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := c.Query(gctx, q)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns a stored document by id.
func (c *Collection) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := c.eng.Get(ctx, id)
	return doc, translateError(err)
}

// Delete removes documents by id and returns how many existed. Unknown ids
// are skipped, so deletes are idempotent.
func (c *Collection) Delete(ctx context.Context, ids ...string) (int, error) {
	start := time.Now()
	deleted, err := c.eng.Delete(ctx, ids...)
	err = translateError(err)

	c.db.opts.logger.LogDelete(ctx, c.name, len(ids), deleted, err)
	c.db.opts.metricsCollector.RecordDelete(deleted, time.Since(start), err)
	return deleted, err
}

// NeedsCompaction reports whether the tombstone ratio has crossed the
// collection's compaction threshold.
func (c *Collection) NeedsCompaction() bool { return c.eng.NeedsCompaction() }

// Compact rebuilds the collection without tombstoned slots. The collection
// is drained for the duration; concurrent operations fail with
// ErrCollectionSealed and can be retried afterwards.
func (c *Collection) Compact(ctx context.Context) (*CompactionStats, error) {
	start := time.Now()
	stats, err := c.eng.Compact(ctx)
	err = translateError(err)

	var live, reclaimed int
	if stats != nil {
		live = stats.Live
		reclaimed = stats.Reclaimed
	}
	c.db.opts.logger.LogCompaction(ctx, c.name, live, reclaimed, time.Since(start), err)
	c.db.opts.metricsCollector.RecordCompaction(reclaimed, time.Since(start), err)
	return stats, err
}
