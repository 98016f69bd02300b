package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/korpus/distance"
)

// DedupeScope selects the reference set probed by near-duplicate detection.
type DedupeScope int

const (
	// DedupeRecent probes the window of most recently accepted documents.
	DedupeRecent DedupeScope = iota

	// DedupeFull probes the whole collection through the graph index.
	DedupeFull
)

// defaultDedupeThreshold suppresses only close matches when the caller
// enables dedupe without picking a threshold.
const defaultDedupeThreshold = 0.95

// AddOptions configures one ingestion batch.
type AddOptions struct {
	// Dedupe enables near-duplicate suppression. Detection is best-effort
	// and probabilistic: suppressed documents are reported as duplicates,
	// but near-duplicates may still get through.
	Dedupe bool

	// DedupeThreshold is the similarity at or above which a document counts
	// as a duplicate. Zero means 0.95.
	DedupeThreshold float64

	// DedupeScope selects the reference set. Defaults to DedupeRecent.
	DedupeScope DedupeScope

	// Upsert replaces live documents instead of rejecting their ids. The
	// replacement receives a fresh slot; nothing of the old version leaks.
	Upsert bool
}

// AddBatch ingests documents as one logical batch.
//
// The whole input is validated before any mutation; a validation failure
// rejects the batch with a ValidationError. After that point documents are
// committed one by one and failures are reported per document in the result:
// earlier documents stay committed. When ctx expires mid-batch, unprocessed
// documents are reported under Failed with the context error and the partial
// result is returned together with that error.
func (e *Engine) AddBatch(ctx context.Context, docs []Document, optFns ...func(o *AddOptions)) (*BatchResult, error) {
	var opts AddOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DedupeThreshold == 0 {
		opts.DedupeThreshold = defaultDedupeThreshold
	}

	if err := e.gate.enter(); err != nil {
		return nil, err
	}
	defer e.gate.exit()

	vecs, err := e.validateBatch(docs, opts)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{}

	for i := range docs {
		if err := ctx.Err(); err != nil {
			for _, rest := range docs[i:] {
				res.Failed = append(res.Failed, FailedDocument{ID: rest.ID, Reason: err.Error()})
			}
			return res, err
		}

		e.addOne(&docs[i], vecs[i], opts, res)
	}

	return res, nil
}

// validateBatch rejects the batch before any mutation. It returns the vector
// per document, L2-normalized copies when the metric requires it.
func (e *Engine) validateBatch(docs []Document, opts AddOptions) ([][]float32, error) {
	normalize := distance.NeedsNormalization(e.cfg.Metric)

	vecs := make([][]float32, len(docs))
	seen := make(map[string]struct{}, len(docs))

	for i := range docs {
		doc := &docs[i]

		if doc.ID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("document %d has an empty id", i)}
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, &ValidationError{ID: doc.ID, Reason: "id appears twice in the batch"}
		}
		seen[doc.ID] = struct{}{}

		if len(doc.Vector) != e.cfg.Dimension {
			return nil, &ValidationError{
				ID:     doc.ID,
				Reason: fmt.Sprintf("dimension mismatch: expected %d, got %d", e.cfg.Dimension, len(doc.Vector)),
			}
		}

		if !opts.Upsert {
			if _, err := e.ids.Resolve(doc.ID); err == nil {
				return nil, &ValidationError{ID: doc.ID, Reason: "id already exists"}
			}
		}

		vecs[i] = doc.Vector
		if normalize {
			normalized, ok := distance.NormalizeL2Copy(doc.Vector)
			if !ok {
				return nil, &ValidationError{ID: doc.ID, Reason: "zero vector cannot be used with the cosine metric"}
			}
			vecs[i] = normalized
		}
	}

	return vecs, nil
}

// addOne commits a single validated document and records its outcome.
func (e *Engine) addOne(doc *Document, vec []float32, opts AddOptions, res *BatchResult) {
	if opts.Dedupe && e.isDuplicate(vec, doc.ID, opts) {
		res.Duplicates = append(res.Duplicates, doc.ID)
		return
	}

	if opts.Upsert {
		if _, err := e.ids.Resolve(doc.ID); err == nil {
			if err := e.deleteOne(doc.ID); err != nil {
				res.Failed = append(res.Failed, FailedDocument{ID: doc.ID, Reason: fmt.Sprintf("replace: %v", err)})
				return
			}
		}
	}

	slot, err := e.ids.Allocate(doc.ID)
	if err != nil {
		res.Failed = append(res.Failed, FailedDocument{ID: doc.ID, Reason: err.Error()})
		return
	}

	if err := e.graph.Insert(slot, vec); err != nil {
		_, _ = e.ids.Release(doc.ID)
		res.Failed = append(res.Failed, FailedDocument{ID: doc.ID, Reason: err.Error()})
		return
	}

	if len(doc.Metadata) > 0 {
		// The store keeps a private copy; the caller is free to reuse the map.
		e.meta.Set(slot, doc.Metadata.Clone())
	}

	if doc.Text != "" {
		if err := e.text.Add(doc.ID, doc.Text); err != nil {
			_, _ = e.ids.Release(doc.ID)
			e.graph.MarkDeleted(slot)
			e.meta.Delete(slot)
			res.Failed = append(res.Failed, FailedDocument{ID: doc.ID, Reason: err.Error()})
			return
		}

		e.mu.Lock()
		e.texts[slot] = doc.Text
		e.mu.Unlock()
	}

	e.pushRecent(slot)
	res.Succeeded = append(res.Succeeded, doc.ID)
}

// isDuplicate probes the reference set for a vector more similar than the
// threshold. The document's own previous version never counts, so upserts
// are not suppressed as duplicates of themselves.
func (e *Engine) isDuplicate(vec []float32, selfID string, opts AddOptions) bool {
	switch opts.DedupeScope {
	case DedupeFull:
		// k=2 so the nearest neighbour besides the document itself is seen.
		cands, err := e.graph.Search(vec, 2, 0)
		if err != nil {
			return false
		}
		for _, c := range cands {
			if id, ok := e.ids.ResolveSlot(c.Slot); ok && id == selfID {
				continue
			}
			if float64(distance.Similarity(e.cfg.Metric, c.Distance)) >= opts.DedupeThreshold {
				return true
			}
		}
	default:
		e.mu.RLock()
		recent := make([]uint32, len(e.recent))
		copy(recent, e.recent)
		e.mu.RUnlock()

		for _, slot := range recent {
			if id, ok := e.ids.ResolveSlot(slot); !ok || id == selfID {
				continue
			}
			ref, ok := e.graph.Vector(slot)
			if !ok {
				continue
			}
			d := e.dist(vec, ref)
			if float64(distance.Similarity(e.cfg.Metric, d)) >= opts.DedupeThreshold {
				return true
			}
		}
	}

	return false
}

// pushRecent appends a slot to the dedupe window, dropping the oldest
// entries beyond the configured size.
func (e *Engine) pushRecent(slot uint32) {
	e.mu.Lock()
	e.recent = append(e.recent, slot)
	if n := len(e.recent) - e.cfg.DedupeWindow; n > 0 {
		e.recent = append(e.recent[:0], e.recent[n:]...)
	}
	e.mu.Unlock()
}
