package testutil

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/hupe1980/korpus/distance"
)

// RNG is a seeded, mutex-guarded random source for deterministic test
// data. Reset rewinds it to the initial seed so a generator can replay
// the exact same vectors.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates a generator from a seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: newPCG(seed), seed: seed}
}

func newPCG(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Reset rewinds the generator to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	r.rand = newPCG(r.seed)
	r.mu.Unlock()
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 { return r.seed }

// Intn returns a pseudo-random int in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns a pseudo-random float32 in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with values in [0, 1) under a single lock
// acquisition.
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// matrix allocates num row slices over one backing array.
func matrix(num, dim int) [][]float32 {
	data := make([]float32, num*dim)
	rows := make([][]float32, num)
	for i := range rows {
		rows[i] = data[i*dim : (i+1)*dim]
	}
	return rows
}

// UniformVectors generates num vectors with coordinates in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := matrix(num, dim)
	for _, vec := range rows {
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
	}
	return rows
}

// UnitVectors generates num L2-normalized vectors distributed uniformly
// on the hypersphere (Gaussian draw, then normalize), the kind of input
// cosine and dot-product tests want.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := matrix(num, dim)
	for _, vec := range rows {
		r.fillUnit(vec)
	}
	return rows
}

func (r *RNG) fillUnit(vec []float32) {
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}
	inv := float32(1 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
}

// ClusteredVectors generates vectors scattered around cluster random
// centroids with the given Gaussian spread. Vector i belongs to centroid
// i modulo clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := matrix(num, dim)
	for i, vec := range rows {
		centroid := centroids[i%clusters]
		for j := range vec {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
	}
	return rows
}

// SearchResult is one hit of a reference search, keyed by graph slot.
type SearchResult struct {
	Slot     uint32
	Distance float32
}

// BruteForceSearch returns the exact k nearest vectors to query by
// squared L2 distance. Slot i corresponds to vectors[i]; ties order by
// ascending slot.
func BruteForceSearch(vectors [][]float32, query []float32, k int) []SearchResult {
	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		results[i] = SearchResult{Slot: uint32(i), Distance: distance.SquaredL2(query, v)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Slot < results[j].Slot
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ComputeRecall reports the fraction of the ground-truth top-k an
// approximate result recovered.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1
		}
		return 0
	}

	k := min(len(approximate), len(groundTruth))
	truth := make(map[uint32]struct{}, k)
	for i := range k {
		truth[groundTruth[i].Slot] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truth[r.Slot]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}
