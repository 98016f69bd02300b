package engine

import (
	"context"
	"time"
)

// NeedsCompaction reports whether the tombstone ratio has crossed the
// configured threshold. The engine never compacts on its own; the owner
// decides when to pay for the rebuild.
func (e *Engine) NeedsCompaction() bool {
	allocated := e.graph.Allocated()
	if allocated == 0 {
		return false
	}

	ratio := float64(e.graph.Tombstones()) / float64(allocated)

	return ratio >= e.cfg.CompactionThreshold
}

// Compact drains the collection, rebuilds the graph without tombstones and
// renumbers the surviving slots densely across the identifier map, the
// metadata store and the text table. The keyword index is keyed by external
// id and needs no renumbering.
//
// Compaction is exclusive: while it runs, operations fail with
// ErrCollectionSealed and should be retried.
func (e *Engine) Compact(ctx context.Context) (*CompactionStats, error) {
	if err := e.gate.seal(); err != nil {
		return nil, err
	}
	defer e.gate.unseal()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	reclaimed := e.graph.Tombstones()

	remap, err := e.graph.Compact()
	if err != nil {
		return nil, err
	}

	e.ids.Remap(remap)
	e.meta.Remap(remap)

	e.mu.Lock()
	texts := make(map[uint32]string, len(remap))
	for oldSlot, text := range e.texts {
		if newSlot, ok := remap[oldSlot]; ok {
			texts[newSlot] = text
		}
	}
	e.texts = texts

	// The dedupe window holds stale slot numbers now; drop it rather than
	// translating best-effort state.
	e.recent = e.recent[:0]
	e.mu.Unlock()

	return &CompactionStats{
		Live:      len(remap),
		Reclaimed: reclaimed,
		Duration:  time.Since(start),
	}, nil
}
