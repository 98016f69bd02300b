package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/metadata"
)

const (
	// defaultRRFConstant is the reciprocal-rank smoothing constant c in
	// 1/(c+rank).
	defaultRRFConstant = 60

	// defaultOverFetchFactor widens the first fetch of a filtered query.
	defaultOverFetchFactor = 2

	// widenRetries bounds how often a filtered query doubles its fetch width
	// before returning a partial result.
	widenRetries = 3
)

// QueryRequest describes one hybrid query. At least one of Vector and Text
// must be set; with both set the two result lists are fused by reciprocal
// rank.
type QueryRequest struct {
	// Vector is the query embedding. Its length must equal the collection
	// dimension.
	Vector []float32

	// Text is the keyword query for the lexical index.
	Text string

	// K is the maximum number of results. Required.
	K int

	// Filter restricts results to documents matching the predicate. Applied
	// as a post-filter on the fused list, so fewer than K results may come
	// back when the predicate is selective.
	Filter *metadata.Predicate

	// EF overrides the graph's search beam width when positive.
	EF int

	// RRFConstant overrides the fusion smoothing constant. Zero means 60.
	RRFConstant float64

	// OverFetchFactor overrides how much a filtered query over-fetches
	// before filtering. Zero means 2.
	OverFetchFactor int
}

// fusedEntry accumulates the per-list ranks of one candidate during fusion.
type fusedEntry struct {
	id         string
	slot       uint32
	score      float64
	distance   float32
	vectorRank int
	textRank   int
}

// Query runs vector and keyword search as requested, fuses the two lists by
// reciprocal rank and applies the metadata post-filter.
//
// Ordering is deterministic: descending fused score, ties broken by the
// better vector rank, then by ascending id. Filtered queries widen the
// candidate fetch geometrically, capped at the live document count, and
// return a partial result when the collection cannot fill K.
func (e *Engine) Query(ctx context.Context, req QueryRequest) ([]ResultEntry, error) {
	if err := e.gate.enter(); err != nil {
		return nil, err
	}
	defer e.gate.exit()

	if req.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, req.K)
	}

	hasVector := len(req.Vector) > 0
	if !hasVector && req.Text == "" {
		return nil, fmt.Errorf("%w: query needs a vector or text", ErrInvalidArgument)
	}
	if hasVector && len(req.Vector) != e.cfg.Dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", ErrInvalidArgument, e.cfg.Dimension, len(req.Vector))
	}

	qvec := req.Vector
	if hasVector && distance.NeedsNormalization(e.cfg.Metric) {
		normalized, ok := distance.NormalizeL2Copy(req.Vector)
		if !ok {
			return nil, fmt.Errorf("%w: zero query vector cannot be used with the cosine metric", ErrInvalidArgument)
		}
		qvec = normalized
	}

	c := req.RRFConstant
	if c <= 0 {
		c = defaultRRFConstant
	}
	factor := req.OverFetchFactor
	if factor <= 0 {
		factor = defaultOverFetchFactor
	}

	fetch := req.K
	if req.Filter != nil {
		fetch = req.K * factor
	}

	live := e.graph.Len()

	var (
		out      []ResultEntry
		prevSeen = -1
	)

	for attempt := 0; ; attempt++ {
		fused, err := e.fetchAndFuse(ctx, qvec, req.Text, fetch, req.EF, c)
		if err != nil {
			return nil, err
		}

		out = e.buildResults(fused, req.Filter, req.K)

		if req.Filter == nil || len(out) >= req.K {
			break
		}
		if attempt >= widenRetries || fetch >= live {
			break
		}
		// No new candidates surfaced; a wider fetch cannot help either.
		if len(fused) == prevSeen {
			break
		}
		prevSeen = len(fused)

		fetch *= 2
		if fetch > live {
			fetch = live
		}
	}

	return out, nil
}

// fetchAndFuse runs the two searches and merges their ranked lists. The
// keyword list is fetched twice as wide as the vector list, which keeps
// keyword-only matches competitive after fusion.
func (e *Engine) fetchAndFuse(ctx context.Context, qvec []float32, text string, fetch, ef int, c float64) ([]*fusedEntry, error) {
	entries := make(map[string]*fusedEntry)

	if len(qvec) > 0 {
		cands, err := e.graph.Search(qvec, fetch, ef)
		if err != nil {
			return nil, err
		}

		rank := 0
		for _, cand := range cands {
			id, ok := e.ids.ResolveSlot(cand.Slot)
			if !ok {
				// Tombstoned between search and resolve; skip.
				continue
			}

			rank++
			entries[id] = &fusedEntry{
				id:         id,
				slot:       cand.Slot,
				score:      1 / (c + float64(rank)),
				distance:   cand.Distance,
				vectorRank: rank,
			}
		}
	}

	if text != "" {
		cands, err := e.text.Search(ctx, text, 2*fetch)
		if err != nil {
			return nil, err
		}

		for i, cand := range cands {
			rank := i + 1

			fe, ok := entries[cand.ID]
			if !ok {
				slot, err := e.ids.Resolve(cand.ID)
				if err != nil {
					continue
				}
				fe = &fusedEntry{id: cand.ID, slot: slot}
				entries[cand.ID] = fe
			}

			fe.textRank = rank
			fe.score += 1 / (c + float64(rank))
		}
	}

	fused := make([]*fusedEntry, 0, len(entries))
	for _, fe := range entries {
		fused = append(fused, fe)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ar, br := rankOrLast(a.vectorRank), rankOrLast(b.vectorRank); ar != br {
			return ar < br
		}
		return a.id < b.id
	})

	return fused, nil
}

// rankOrLast orders entries without a vector rank behind every ranked one.
func rankOrLast(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// buildResults applies the post-filter and assembles at most k entries.
func (e *Engine) buildResults(fused []*fusedEntry, pred *metadata.Predicate, k int) []ResultEntry {
	filter := e.meta.FilterFunc(pred)

	out := make([]ResultEntry, 0, min(k, len(fused)))

	for _, fe := range fused {
		if filter != nil && !filter(fe.slot) {
			continue
		}

		entry := ResultEntry{
			ID:         fe.id,
			Score:      fe.score,
			VectorRank: fe.vectorRank,
			TextRank:   fe.textRank,
		}
		if fe.vectorRank > 0 {
			entry.Distance = fe.distance
		}
		if m, ok := e.meta.Get(fe.slot); ok {
			entry.Metadata = m.Clone()
		}

		e.mu.RLock()
		entry.Text = e.texts[fe.slot]
		e.mu.RUnlock()

		out = append(out, entry)
		if len(out) == k {
			break
		}
	}

	return out
}
