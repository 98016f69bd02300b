package benchmark_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/testutil"
)

// ============================================================================
// Benchmark Configuration
// ============================================================================

// Standard dimensions used across benchmarks for consistency.
const (
	dimSmall  = 128  // Fast CI benchmarks
	dimMedium = 768  // OpenAI text-embedding-3-small, Cohere v3
	dimLarge  = 1536 // OpenAI text-embedding-3-large
)

// Standard dataset sizes.
const (
	sizeSmall  = 1_000
	sizeMedium = 10_000
)

// Seed for deterministic benchmarks - enables reproducible comparisons.
const benchSeed = 42

// benchBatch is the batch size used when preloading collections.
const benchBatch = 1000

// ============================================================================
// Benchmark Helpers
// ============================================================================

// newBenchDB creates an in-memory database that is closed with the benchmark.
func newBenchDB(b *testing.B, optFns ...korpus.Option) *korpus.DB {
	b.Helper()

	db, err := korpus.New(optFns...)
	if err != nil {
		b.Fatal(err)
	}

	b.Cleanup(func() { db.Close() })

	return db
}

// newBenchCollection creates a single L2 collection for benchmarks that do
// not touch persistence.
func newBenchCollection(b *testing.B, dim int) *korpus.Collection {
	b.Helper()

	db := newBenchDB(b)

	col, err := db.CreateCollection(context.Background(), "bench", korpus.CollectionConfig{
		Dimension: dim,
		Metric:    distance.MetricL2,
	})
	if err != nil {
		b.Fatal(err)
	}

	return col
}

// loadVectors batch-adds n uniform random vectors and returns them so callers
// can compute exact ground truth. Document i gets id benchID(i).
func loadVectors(b *testing.B, col *korpus.Collection, n, dim int) [][]float32 {
	b.Helper()

	rng := testutil.NewRNG(benchSeed)
	vectors := rng.UniformVectors(n, dim)

	ctx := context.Background()
	for off := 0; off < n; off += benchBatch {
		end := min(off+benchBatch, n)

		docs := make([]korpus.Document, 0, end-off)
		for i := off; i < end; i++ {
			docs = append(docs, korpus.Document{ID: benchID(i), Vector: vectors[i]})
		}

		if _, err := col.Add(ctx, docs); err != nil {
			b.Fatal(err)
		}
	}

	return vectors
}

func benchID(i int) string { return "doc-" + strconv.Itoa(i) }

// benchRecall maps result ids back to their slots and compares against exact
// ground truth from testutil.BruteForceSearch.
func benchRecall(truth []testutil.SearchResult, hits []korpus.Result) float64 {
	approx := make([]testutil.SearchResult, 0, len(hits))

	for _, hit := range hits {
		n, err := strconv.Atoi(strings.TrimPrefix(hit.ID, "doc-"))
		if err != nil {
			continue
		}

		approx = append(approx, testutil.SearchResult{Slot: uint32(n), Distance: hit.Distance})
	}

	return testutil.ComputeRecall(truth, approx)
}

func formatCount(n int) string {
	if n >= 1000 && n%1000 == 0 {
		return strconv.Itoa(n/1000) + "k"
	}

	return strconv.Itoa(n)
}
