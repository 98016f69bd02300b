package bm25

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/korpus/lexical"
)

// Okapi BM25 parameters. k1 controls term-frequency saturation, b the
// strength of document-length normalization.
const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	id    string
	count int
}

// MemoryIndex is an in-memory BM25 keyword index.
type MemoryIndex struct {
	mu       sync.RWMutex
	postings map[string][]posting
	lengths  map[string]int
	terms    map[string][]string
	totalLen int64
	docs     int
}

// New creates an empty MemoryIndex.
func New() *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[string][]posting),
		lengths:  make(map[string]int),
		terms:    make(map[string][]string),
	}
}

var _ lexical.Index = (*MemoryIndex)(nil)

// tokenize lowercases and splits on whitespace. Deliberately minimal;
// richer analysis belongs in front of the index.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Add indexes text under id, replacing any previous text for the id.
func (idx *MemoryIndex) Add(id string, text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.lengths[id]; ok {
		idx.deleteLocked(id)
	}

	tokens := tokenize(text)
	idx.lengths[id] = len(tokens)
	idx.totalLen += int64(len(tokens))
	idx.docs++

	freq := make(map[string]int)
	for _, t := range tokens {
		freq[t]++
	}

	terms := make([]string, 0, len(freq))
	for t, n := range freq {
		idx.postings[t] = append(idx.postings[t], posting{id: id, count: n})
		terms = append(terms, t)
	}
	idx.terms[id] = terms

	return nil
}

// Delete removes a document from the index. Deleting an unknown id is a no-op.
func (idx *MemoryIndex) Delete(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(id)
	return nil
}

func (idx *MemoryIndex) deleteLocked(id string) {
	length, ok := idx.lengths[id]
	if !ok {
		return
	}

	// The per-document term list keeps removal proportional to the
	// document's own vocabulary rather than the whole index.
	for _, t := range idx.terms[id] {
		list := idx.postings[t]
		for i, p := range list {
			if p.id == id {
				idx.postings[t] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(idx.postings[t]) == 0 {
			delete(idx.postings, t)
		}
	}

	delete(idx.lengths, id)
	delete(idx.terms, id)
	idx.totalLen -= int64(length)
	idx.docs--
}

// Search scores all matching documents and returns the top k ordered by
// descending score, ties broken by ascending id for determinism.
func (idx *MemoryIndex) Search(ctx context.Context, query string, k int) ([]lexical.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.docs == 0 || k <= 0 {
		return nil, nil
	}

	scores := idx.scoreLocked(tokenize(query))

	out := make([]lexical.Candidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, lexical.Candidate{ID: id, Score: score})
	}

	slices.SortFunc(out, func(a, b lexical.Candidate) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (idx *MemoryIndex) scoreLocked(tokens []string) map[string]float32 {
	scores := make(map[string]float32)
	avgLen := float64(idx.totalLen) / float64(idx.docs)

	for _, t := range tokens {
		list, ok := idx.postings[t]
		if !ok {
			continue
		}

		idf := idx.idf(len(list))

		for _, p := range list {
			tf := float64(p.count)
			norm := 1 - b + b*(float64(idx.lengths[p.id])/avgLen)
			scores[p.id] += float32(idf * tf * (k1 + 1) / (tf + k1*norm))
		}
	}
	return scores
}

// idf computes log(1 + (N - n + 0.5) / (n + 0.5)), the Okapi variant
// that never goes negative.
func (idx *MemoryIndex) idf(df int) float64 {
	N, n := float64(idx.docs), float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// Len returns the number of indexed documents.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docs
}

// Close releases the index.
func (idx *MemoryIndex) Close() error {
	return nil
}
