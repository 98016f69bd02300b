package hnsw

// Compact rebuilds the graph without tombstoned nodes and renumbers the
// surviving slots densely, preserving their relative order. It returns the
// old-to-new slot mapping so the caller can renumber slot-keyed structures of
// its own.
//
// The rebuild re-inserts every live vector into a fresh graph, so edges
// routed through tombstoned bridges are re-established directly. Callers must
// hold off reads and writes for the duration; the engine drains in-flight
// operations before invoking Compact.
func (g *Graph) Compact() (map[uint32]uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fresh, err := New(g.dimension, func(o *Options) {
		*o = g.opts
	})
	if err != nil {
		return nil, err
	}

	remap := make(map[uint32]uint32, g.allocated-int(g.tombstones.GetCardinality()))

	var next uint32

	for slot := range g.nodes {
		n := g.nodes[slot]
		if n == nil || g.tombstones.Contains(uint32(slot)) {
			continue
		}

		remap[uint32(slot)] = next

		if err := fresh.Insert(next, n.vector); err != nil {
			return nil, err
		}

		next++
	}

	g.nodes = fresh.nodes
	g.entry = fresh.entry
	g.hasEntry = fresh.hasEntry
	g.maxLevel = fresh.maxLevel
	g.allocated = fresh.allocated
	g.tombstones = fresh.tombstones
	g.rng = fresh.rng

	return remap, nil
}
