package hnsw

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Nodes       int // nodes whose top level is this layer
	Connections int // edges stored at this layer across all nodes
}

// Stats describes the shape and parameters of the graph.
type Stats struct {
	Dimension      int
	M              int
	EFConstruction int
	EFSearch       int
	Allocated      int // slots holding a node, tombstoned ones included
	Live           int
	Tombstones     int
	MaxLevel       int
	Levels         []LevelStats
}

// Stats returns a snapshot of the graph shape.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Dimension:      g.dimension,
		M:              g.opts.M,
		EFConstruction: g.opts.EFConstruction,
		EFSearch:       g.opts.EFSearch,
		Allocated:      g.allocated,
		Tombstones:     int(g.tombstones.GetCardinality()),
		MaxLevel:       g.maxLevel,
		Levels:         make([]LevelStats, g.maxLevel+1),
	}

	s.Live = s.Allocated - s.Tombstones

	for _, n := range g.nodes {
		if n == nil {
			continue
		}

		if n.level < len(s.Levels) {
			s.Levels[n.level].Nodes++
		}

		for l := 0; l <= n.level && l < len(s.Levels); l++ {
			s.Levels[l].Connections += len(n.conns[l])
		}
	}

	return s
}
