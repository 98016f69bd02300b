package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/internal/visited"
	"github.com/hupe1980/korpus/queue"
)

var (
	// ErrInvalidK is returned when a search asks for a non-positive number of results.
	ErrInvalidK = errors.New("hnsw: k must be positive")

	// ErrSlotOccupied is returned when a slot already holds a node.
	ErrSlotOccupied = errors.New("hnsw: slot already occupied")
)

// DimensionMismatchError is returned when a vector does not match the
// dimensionality the graph was created with.
type DimensionMismatchError struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Candidate is a single search result: a slot and its distance to the query.
type Candidate struct {
	Slot     uint32
	Distance float32
}

// Options represents the options for configuring the graph.
type Options struct {
	// M specifies the number of established connections for every new element
	// during construction. Reasonable range for M is 2-100. Higher M works
	// better on datasets with high intrinsic dimensionality and/or high
	// recall, while low M works better for datasets with low intrinsic
	// dimensionality and/or low recalls.
	M int

	// EFConstruction specifies the size of the dynamic candidate list during
	// construction. Larger values build a better graph at the cost of slower
	// inserts. M * EFConstruction can be treated as roughly constant when
	// tuning.
	EFConstruction int

	// EFSearch specifies the default size of the dynamic candidate list
	// during search. Larger values improve recall at the cost of increased
	// search time. Search calls may override it per query.
	EFSearch int

	// Heuristic indicates whether to use the heuristic neighbour selection
	// (true) or simple closest-first selection (false). The heuristic keeps
	// edges across sparse regions of the vector space and is almost always
	// the better choice.
	Heuristic bool

	// Distance is the function used for all distance calculations.
	Distance distance.Func

	// Seed seeds the level generator. Graphs built with the same seed and the
	// same insertion order are identical.
	Seed int64
}

// DefaultOptions holds the default graph parameters.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       50,
	Heuristic:      true,
	Distance:       distance.SquaredL2,
	Seed:           1,
}

// node is a single element of the graph. conns[l] holds the neighbour slots
// at layer l, 0 <= l <= level.
type node struct {
	vector []float32
	level  int
	conns  [][]uint32
}

// Graph is a Hierarchical Navigable Small World proximity graph over
// slot-addressed vectors.
//
// Slots are assigned by the caller and expected to be dense; the graph grows
// its internal table to the highest slot seen. Deletion is logical: a
// tombstoned node keeps routing traversals through its edges but never
// appears in results. Compact rebuilds the graph without tombstones and
// renumbers the surviving slots.
//
// All methods are safe for concurrent use. Searches run concurrently with
// each other; inserts, deletions and compaction take the writer side of the
// graph lock.
type Graph struct {
	dimension int
	mmax      int     // max connections per node and layer
	mmax0     int     // max connections at the bottom layer
	ml        float64 // normalization factor for level generation
	opts      Options

	mu         sync.RWMutex
	nodes      []*node // indexed by slot; nil when the slot never held a node
	entry      uint32
	hasEntry   bool
	maxLevel   int
	allocated  int
	tombstones *roaring.Bitmap
	rng        *rand.Rand

	visitedPool sync.Pool
}

// New creates an empty graph for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) (*Graph, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", dimension)
	}

	if opts.M < 2 {
		// M == 1 would make the level factor divide by zero
		opts.M = 2
	}

	if opts.EFConstruction < 1 {
		opts.EFConstruction = DefaultOptions.EFConstruction
	}

	if opts.EFSearch < 1 {
		opts.EFSearch = DefaultOptions.EFSearch
	}

	if opts.Distance == nil {
		opts.Distance = distance.SquaredL2
	}

	if opts.Seed == 0 {
		opts.Seed = DefaultOptions.Seed
	}

	g := &Graph{
		dimension:  dimension,
		mmax:       opts.M,
		mmax0:      2 * opts.M,
		ml:         1 / math.Log(float64(opts.M)),
		opts:       opts,
		tombstones: roaring.New(),
		rng:        rand.New(rand.NewSource(opts.Seed)), // nolint gosec
	}

	g.visitedPool.New = func() any {
		return visited.New(1024)
	}

	return g, nil
}

// Insert adds a vector under the given slot. The slot must not already hold a
// node; slots are expected to come from an allocator that hands them out
// densely. The vector is copied, so changes to it after the call do not
// affect the graph.
func (g *Graph) Insert(slot uint32, v []float32) error {
	if len(v) != g.dimension {
		return &DimensionMismatchError{Expected: g.dimension, Actual: len(v)}
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	g.mu.Lock()
	defer g.mu.Unlock()

	if int(slot) < len(g.nodes) && g.nodes[slot] != nil {
		return fmt.Errorf("%w: %d", ErrSlotOccupied, slot)
	}

	level := g.randomLevel()

	n := &node{
		vector: vec,
		level:  level,
		conns:  make([][]uint32, level+1),
	}

	if !g.hasEntry {
		g.publish(slot, n)
		g.entry = slot
		g.maxLevel = level
		g.hasEntry = true

		return nil
	}

	ep := queue.Item{Slot: g.entry, Distance: g.opts.Distance(vec, g.nodes[g.entry].vector)}

	// Greedily descend through the layers above the new node's level to find
	// the entry point for the beam searches below.
	if g.maxLevel > level {
		ep = g.descend(vec, ep, g.maxLevel, level+1)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		found := drainAscending(g.searchLayer(vec, ep, g.opts.EFConstruction, l))
		if len(found) > 0 {
			ep = *found[0]
		}

		n.conns[l] = g.selectNeighbours(found, g.opts.M)
	}

	// The node is fully built; make it visible, then wire the back links.
	g.publish(slot, n)

	for l := min(level, g.maxLevel); l >= 0; l-- {
		for _, nb := range n.conns[l] {
			g.link(nb, slot, l)
		}
	}

	if level > g.maxLevel {
		g.entry = slot
		g.maxLevel = level
	}

	return nil
}

// Search returns the k nearest live slots to the query in ascending distance
// order, ties broken by ascending slot. The ef parameter overrides the
// configured EFSearch when positive. Searching an empty graph returns an
// empty result set.
func (g *Graph) Search(q []float32, k, ef int) ([]Candidate, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	if len(q) != g.dimension {
		return nil, &DimensionMismatchError{Expected: g.dimension, Actual: len(q)}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}

	if ef <= 0 {
		ef = g.opts.EFSearch
	}

	// Tombstoned nodes are filtered after traversal, so widen the beam by the
	// tombstone count to keep up to k live results reachable.
	if need := k + int(g.tombstones.GetCardinality()); ef < need {
		ef = need
	}

	ep := queue.Item{Slot: g.entry, Distance: g.opts.Distance(q, g.nodes[g.entry].vector)}
	if g.maxLevel > 0 {
		ep = g.descend(q, ep, g.maxLevel, 1)
	}

	found := drainAscending(g.searchLayer(q, ep, ef, 0))

	out := make([]Candidate, 0, min(k, len(found)))

	for _, it := range found {
		if g.tombstones.Contains(it.Slot) {
			continue
		}

		out = append(out, Candidate{Slot: it.Slot, Distance: it.Distance})

		if len(out) == k {
			break
		}
	}

	return out, nil
}

// MarkDeleted tombstones a slot. The node stays in the graph as a routing
// bridge but is excluded from all future search results. It returns false
// when the slot holds no node or is already tombstoned.
func (g *Graph) MarkDeleted(slot uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if int(slot) >= len(g.nodes) || g.nodes[slot] == nil {
		return false
	}

	return g.tombstones.CheckedAdd(slot)
}

// Deleted returns true if the slot is tombstoned.
func (g *Graph) Deleted(slot uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.tombstones.Contains(slot)
}

// Vector returns the stored vector for a live slot. The returned slice is
// shared with the graph and must not be modified.
func (g *Graph) Vector(slot uint32) ([]float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if int(slot) >= len(g.nodes) || g.nodes[slot] == nil || g.tombstones.Contains(slot) {
		return nil, false
	}

	return g.nodes[slot].vector, true
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.allocated - int(g.tombstones.GetCardinality())
}

// Allocated returns the number of slots holding a node, tombstoned ones
// included.
func (g *Graph) Allocated() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.allocated
}

// Tombstones returns the number of tombstoned nodes.
func (g *Graph) Tombstones() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return int(g.tombstones.GetCardinality())
}

// TombstoneBitmap returns a copy of the tombstone bitmap.
func (g *Graph) TombstoneBitmap() *roaring.Bitmap {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.tombstones.Clone()
}

// Dimension returns the dimensionality the graph was created with.
func (g *Graph) Dimension() int {
	return g.dimension
}

// publish makes a fully built node visible under its slot.
func (g *Graph) publish(slot uint32, n *node) {
	for int(slot) >= len(g.nodes) {
		g.nodes = append(g.nodes, nil)
	}

	g.nodes[slot] = n
	g.allocated++
}

// randomLevel draws a level from the exponential layer distribution.
func (g *Graph) randomLevel() int {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}

	return int(math.Floor(-math.Log(u) * g.ml))
}

// descend greedily walks from the entry item down to the target layer,
// following the closest neighbour at each layer.
func (g *Graph) descend(q []float32, ep queue.Item, from, to int) queue.Item {
	for l := from; l >= to; l-- {
		changed := true

		for changed {
			changed = false

			n := g.nodes[ep.Slot]
			if l >= len(n.conns) {
				break
			}

			for _, nb := range n.conns[l] {
				if d := g.opts.Distance(q, g.nodes[nb].vector); d < ep.Distance {
					ep = queue.Item{Slot: nb, Distance: d}
					changed = true
				}
			}
		}
	}

	return ep
}

// searchLayer runs a beam search over one layer and returns a max queue with
// up to ef candidates. Tombstoned nodes take part in the traversal so that
// they keep bridging the graph.
func (g *Graph) searchLayer(q []float32, ep queue.Item, ef, level int) *queue.DistanceQueue {
	vis, _ := g.visitedPool.Get().(*visited.Set)
	vis.EnsureCapacity(len(g.nodes))

	defer func() {
		vis.Reset()
		g.visitedPool.Put(vis)
	}()

	vis.Visit(ep.Slot)

	candidates := queue.NewMin()
	candidates.PushItem(ep.Slot, ep.Distance)

	results := queue.NewMax()
	results.PushItem(ep.Slot, ep.Distance)

	for candidates.Len() > 0 {
		lowerBound := results.Peek().Distance

		c := candidates.PopItem()
		if c.Distance > lowerBound {
			break
		}

		n := g.nodes[c.Slot]
		if level >= len(n.conns) {
			continue
		}

		for _, nb := range n.conns[level] {
			if vis.Visited(nb) {
				continue
			}

			vis.Visit(nb)

			d := g.opts.Distance(q, g.nodes[nb].vector)

			if results.Len() < ef {
				candidates.PushItem(nb, d)
				results.PushItem(nb, d)
			} else if d < results.Peek().Distance {
				candidates.PushItem(nb, d)

				_ = results.PopItem()
				results.PushItem(nb, d)
			}
		}
	}

	return results
}

// selectNeighbours picks up to m connection targets from candidates ordered
// by ascending distance to the inserted vector. The heuristic keeps a
// candidate only when it is closer to the new node than to any already chosen
// neighbour, which preserves edges across sparse regions of the space.
// Pruned candidates backfill when fewer than m survive.
func (g *Graph) selectNeighbours(cands []*queue.Item, m int) []uint32 {
	if len(cands) > m && g.opts.Heuristic {
		chosen := make([]*queue.Item, 0, m)

		var pruned []*queue.Item

		for _, c := range cands {
			if len(chosen) >= m {
				break
			}

			keep := true

			for _, ch := range chosen {
				if g.opts.Distance(g.nodes[ch.Slot].vector, g.nodes[c.Slot].vector) < c.Distance {
					keep = false
					break
				}
			}

			if keep {
				chosen = append(chosen, c)
			} else {
				pruned = append(pruned, c)
			}
		}

		for len(chosen) < m && len(pruned) > 0 {
			chosen = append(chosen, pruned[0])
			pruned = pruned[1:]
		}

		cands = chosen
	}

	if len(cands) > m {
		cands = cands[:m]
	}

	out := make([]uint32, len(cands))
	for i, c := range cands {
		out[i] = c.Slot
	}

	return out
}

// link adds an edge from slot to target at the given layer, pruning the
// neighbour list back down when it overflows the connection cap.
func (g *Graph) link(slot, target uint32, level int) {
	maxConns := g.mmax
	if level == 0 {
		// The bottom layer allows double the connections.
		maxConns = g.mmax0
	}

	n := g.nodes[slot]
	n.conns[level] = append(n.conns[level], target)

	if len(n.conns[level]) <= maxConns {
		return
	}

	items := make([]*queue.Item, len(n.conns[level]))
	for i, nb := range n.conns[level] {
		items[i] = &queue.Item{Slot: nb, Distance: g.opts.Distance(n.vector, g.nodes[nb].vector)}
	}

	sortByDistance(items)

	n.conns[level] = g.selectNeighbours(items, maxConns)
}

// drainAscending empties a max queue into a slice sorted by ascending
// distance, ties broken by ascending slot.
func drainAscending(q *queue.DistanceQueue) []*queue.Item {
	items := make([]*queue.Item, q.Len())
	for i := len(items) - 1; i >= 0; i-- {
		items[i] = q.PopItem()
	}

	sortByDistance(items)

	return items
}

func sortByDistance(items []*queue.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Distance != items[j].Distance {
			return items[i].Distance < items[j].Distance
		}

		return items[i].Slot < items[j].Slot
	})
}
