package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/metadata"
)

func main() {
	ctx := context.Background()

	db, err := korpus.New()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	col, err := db.CreateCollection(ctx, "articles", korpus.CollectionConfig{
		Dimension: 3,
		Metric:    distance.MetricCosine,
	})
	if err != nil {
		log.Fatal(err)
	}

	docs := []korpus.Document{
		{
			ID:     "a-1",
			Vector: []float32{0.9, 0.1, 0.0},
			Text:   "solar panels cut household energy bills",
			Metadata: metadata.Document{
				"topic": metadata.String("energy"),
				"year":  metadata.Int(2024),
			},
		},
		{
			ID:     "a-2",
			Vector: []float32{0.8, 0.2, 0.1},
			Text:   "offshore wind turbines reach record output",
			Metadata: metadata.Document{
				"topic": metadata.String("energy"),
				"year":  metadata.Int(2023),
			},
		},
		{
			ID:     "a-3",
			Vector: []float32{0.0, 0.2, 0.9},
			Text:   "city council debates new bicycle lanes",
			Metadata: metadata.Document{
				"topic": metadata.String("transport"),
				"year":  metadata.Int(2024),
			},
		},
	}

	res, err := col.Add(ctx, docs)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Ingest ---")
	fmt.Println("Accepted:", len(res.Succeeded))
	fmt.Println()

	fmt.Println("--- Hybrid Search ---")

	hits, err := col.Query(ctx, korpus.Query{
		Vector: []float32{0.9, 0.1, 0.0},
		Text:   "wind turbines",
		K:      3,
	})
	if err != nil {
		log.Fatal(err)
	}

	printHits(hits)

	fmt.Println("--- Filtered Search ---")

	hits, err = col.Query(ctx, korpus.Query{
		Vector: []float32{0.9, 0.1, 0.0},
		K:      3,
		Filter: map[string]any{
			"topic": "energy",
			"year":  map[string]any{"$gte": 2024},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	printHits(hits)

	fmt.Println("--- Keyword Search ---")

	hits, err = col.Query(ctx, korpus.Query{
		Text:        "bicycle lanes",
		K:           3,
		KeywordOnly: true,
	})
	if err != nil {
		log.Fatal(err)
	}

	printHits(hits)
}

func printHits(hits []korpus.Result) {
	for i, hit := range hits {
		fmt.Printf("%d. %s (score=%.4f vectorRank=%d textRank=%d)\n",
			i+1, hit.ID, hit.Score, hit.VectorRank, hit.TextRank)
	}

	fmt.Println()
}
