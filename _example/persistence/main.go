package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/testutil"
)

func main() {
	seed := int64(4711)
	dim := 64
	size := 20000
	batch := 1000
	k := 10

	ctx := context.Background()

	root, err := os.MkdirTemp("", "korpus-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(root)

	db, err := korpus.New(
		korpus.WithLocalStore(root),
		korpus.WithBlockCache(64<<20),
	)
	if err != nil {
		log.Fatal(err)
	}

	col, err := db.CreateCollection(ctx, "vectors", korpus.CollectionConfig{
		Dimension: dim,
		Metric:    distance.MetricL2,
	})
	if err != nil {
		log.Fatal(err)
	}

	rng := testutil.NewRNG(seed)
	vectors := rng.UniformVectors(size, dim)
	query := rng.UniformVectors(1, dim)[0]

	fmt.Println("--- Ingest ---")
	fmt.Println("Dimension:", dim)
	fmt.Println("Size:", size)

	start := time.Now()

	for off := 0; off < size; off += batch {
		docs := make([]korpus.Document, 0, batch)
		for i := off; i < off+batch && i < size; i++ {
			docs = append(docs, korpus.Document{
				ID:     fmt.Sprintf("doc-%d", i),
				Vector: vectors[i],
			})
		}

		if _, err := col.Add(ctx, docs); err != nil {
			log.Fatal(err)
		}
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- Save ---")

	start = time.Now()

	if err := db.Save(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	if err := db.Close(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Reopen ---")

	start = time.Now()

	db, err = korpus.Open(ctx, korpus.WithLocalStore(root))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	col, err = db.Collection("vectors")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Search ---")

	start = time.Now()

	hits, err := col.Query(ctx, korpus.Query{Vector: query, K: k, EF: 80})
	if err != nil {
		log.Fatal(err)
	}

	took := time.Since(start)

	approx := make([]testutil.SearchResult, 0, len(hits))
	for _, hit := range hits {
		slot, err := strconv.Atoi(strings.TrimPrefix(hit.ID, "doc-"))
		if err != nil {
			log.Fatal(err)
		}

		approx = append(approx, testutil.SearchResult{Slot: uint32(slot), Distance: hit.Distance})
	}

	truth := testutil.BruteForceSearch(vectors, query, k)

	for i, hit := range hits {
		fmt.Printf("%d. %s (distance=%.4f)\n", i+1, hit.ID, hit.Distance)
	}

	fmt.Printf("Recall@%d: %.2f\n", k, testutil.ComputeRecall(truth, approx))
	fmt.Printf("Seconds: %.8f\n", took.Seconds())
}
