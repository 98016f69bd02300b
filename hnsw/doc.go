// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbor search over slot-addressed vectors.
//
// The graph stores vectors in layers: every node lives at layer 0, and each
// higher layer keeps an exponentially thinner subset used as an express lane
// during search. A query greedily descends the upper layers, then runs a beam
// search of width ef over the bottom layer.
//
// # Slots and Deletion
//
// Nodes are addressed by caller-assigned uint32 slots (usually from an
// identifier allocator). Deletion is logical: MarkDeleted tombstones the
// slot, keeping the node as a routing bridge while excluding it from results.
// Searches widen their beam by the tombstone count so k live results stay
// reachable. Compact rebuilds the graph without tombstones and returns the
// slot renumbering.
//
// # Usage
//
//	g, _ := hnsw.New(128, func(o *hnsw.Options) {
//	    o.Distance = distance.SquaredL2
//	})
//	_ = g.Insert(0, vec)
//	candidates, _ := g.Search(query, 10, 0)
//
// Searches run concurrently; inserts, deletions and compaction serialize on
// the writer side of the graph lock.
package hnsw
