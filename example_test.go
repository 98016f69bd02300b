package korpus_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/distance"
)

func Example() {
	ctx := context.Background()

	db, err := korpus.New()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	col, err := db.CreateCollection(ctx, "articles", korpus.CollectionConfig{Dimension: 3})
	if err != nil {
		log.Fatal(err)
	}

	_, err = col.Add(ctx, []korpus.Document{
		{ID: "a-1", Vector: []float32{1, 0, 0}, Text: "solar panels on rooftops"},
		{ID: "a-2", Vector: []float32{0, 1, 0}, Text: "offshore wind turbines"},
		{ID: "a-3", Vector: []float32{0, 0, 1}, Text: "battery storage economics"},
	})
	if err != nil {
		log.Fatal(err)
	}

	// Hybrid retrieval: the vector leg favors a-1, the keyword leg a-2;
	// matching both rankings lifts a-2 to the top.
	hits, err := col.Query(ctx, korpus.Query{
		Vector: []float32{0.9, 0.1, 0},
		Text:   "wind turbines",
		K:      2,
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, hit := range hits {
		fmt.Println(hit.ID)
	}
	// Output:
	// a-2
	// a-1
}

func ExampleOpen() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	db, err := korpus.New(korpus.WithBlobStore(store))
	if err != nil {
		log.Fatal(err)
	}

	col, err := db.CreateCollection(ctx, "articles", korpus.CollectionConfig{
		Dimension: 3,
		Metric:    distance.MetricCosine,
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := col.Add(ctx, []korpus.Document{
		{ID: "a-1", Vector: []float32{1, 0, 0}, Text: "solar panels on rooftops"},
	}); err != nil {
		log.Fatal(err)
	}

	// Persist every collection and commit a new catalog generation.
	if err := db.Save(ctx); err != nil {
		log.Fatal(err)
	}
	if err := db.Close(); err != nil {
		log.Fatal(err)
	}

	// Reopen from the same store.
	db2, err := korpus.Open(ctx, korpus.WithBlobStore(store))
	if err != nil {
		log.Fatal(err)
	}
	defer db2.Close()

	restored, err := db2.Collection("articles")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(restored.Count())
	// Output:
	// 1
}
