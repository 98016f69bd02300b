package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/metadata"
)

func TestLifecycle_Restart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// 1. Create, ingest, and snapshot.
	db, err := korpus.New(korpus.WithLocalStore(dir))
	require.NoError(t, err)

	articles, err := db.CreateCollection(ctx, "articles", korpus.CollectionConfig{
		Dimension: 3,
		Metric:    distance.MetricCosine,
	})
	require.NoError(t, err)

	res, err := articles.Add(ctx, []korpus.Document{
		{
			ID:     "a-1",
			Vector: []float32{1, 0, 0},
			Text:   "solar panels on every roof",
			Metadata: metadata.Document{
				"lang": metadata.String("en"),
				"year": metadata.Int(2024),
			},
		},
		{ID: "a-2", Vector: []float32{0, 1, 0}, Text: "offshore wind turbines"},
		{ID: "a-3", Vector: []float32{0, 0, 1}, Text: "bicycle lanes downtown"},
	})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 3)

	notes, err := db.CreateCollection(ctx, "notes", korpus.CollectionConfig{
		Dimension: 2,
		Metric:    distance.MetricL2,
	})
	require.NoError(t, err)

	require.NoError(t, notes.AddOne(ctx, korpus.Document{ID: "n-1", Vector: []float32{1, 1}}))

	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Close())

	// 2. Reopen and verify everything survived.
	db, err = korpus.Open(ctx, korpus.WithLocalStore(dir))
	require.NoError(t, err)
	defer db.Close()

	infos := db.ListCollections()
	require.Len(t, infos, 2)
	assert.Equal(t, "articles", infos[0].Name)
	assert.Equal(t, "notes", infos[1].Name)
	assert.Equal(t, 3, infos[0].Documents)
	assert.Equal(t, 1, infos[1].Documents)

	articles, err = db.Collection("articles")
	require.NoError(t, err)
	assert.Equal(t, distance.MetricCosine, articles.Config().Metric)

	hits, err := articles.Query(ctx, korpus.Query{Vector: []float32{1, 0, 0}, K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a-1", hits[0].ID)

	doc, err := articles.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "solar panels on every roof", doc.Text)
	assert.Equal(t, metadata.String("en"), doc.Metadata["lang"])
	assert.Equal(t, metadata.Int(2024), doc.Metadata["year"])

	// Keyword index is rebuilt from the restored documents.
	hits, err = articles.Query(ctx, korpus.Query{Text: "turbines", K: 1, KeywordOnly: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a-2", hits[0].ID)
}

func TestLifecycle_CompactThenRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := korpus.New(korpus.WithLocalStore(dir))
	require.NoError(t, err)

	col, err := db.CreateCollection(ctx, "vectors", korpus.CollectionConfig{
		Dimension: 2,
		Metric:    distance.MetricL2,
	})
	require.NoError(t, err)

	_, err = col.Add(ctx, []korpus.Document{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "c", Vector: []float32{-1, 0}},
		{ID: "d", Vector: []float32{0, -1}},
	})
	require.NoError(t, err)

	deleted, err := col.Delete(ctx, "b", "d")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	stats, err := col.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Live)
	assert.Equal(t, 2, stats.Reclaimed)
	assert.Equal(t, 0, col.Tombstones())

	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Close())

	db, err = korpus.Open(ctx, korpus.WithLocalStore(dir))
	require.NoError(t, err)
	defer db.Close()

	col, err = db.Collection("vectors")
	require.NoError(t, err)
	assert.Equal(t, 2, col.Count())
	assert.Equal(t, 0, col.Tombstones())

	hits, err := col.Query(ctx, korpus.Query{Vector: []float32{1, 0}, K: 4})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)

	_, err = col.Get(ctx, "b")
	require.ErrorIs(t, err, korpus.ErrNotFound)
}

func TestLifecycle_GenerationsAndPrune(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := korpus.New(korpus.WithLocalStore(dir))
	require.NoError(t, err)

	col, err := db.CreateCollection(ctx, "vectors", korpus.CollectionConfig{
		Dimension: 2,
		Metric:    distance.MetricL2,
	})
	require.NoError(t, err)

	// Three generations, each adding one document.
	for i, id := range []string{"g-1", "g-2", "g-3"} {
		require.NoError(t, col.AddOne(ctx, korpus.Document{
			ID:     id,
			Vector: []float32{float32(i), 1},
		}))
		require.NoError(t, db.Save(ctx))
	}

	removed, err := db.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Positive(t, removed)

	require.NoError(t, db.Close())

	// The latest generation is intact after pruning.
	db, err = korpus.Open(ctx, korpus.WithLocalStore(dir))
	require.NoError(t, err)
	defer db.Close()

	col, err = db.Collection("vectors")
	require.NoError(t, err)
	assert.Equal(t, 3, col.Count())

	for _, id := range []string{"g-1", "g-2", "g-3"} {
		_, err := col.Get(ctx, id)
		require.NoError(t, err)
	}
}

func TestLifecycle_DropCollection(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := korpus.New(korpus.WithLocalStore(dir))
	require.NoError(t, err)

	for _, name := range []string{"keep", "drop"} {
		col, err := db.CreateCollection(ctx, name, korpus.CollectionConfig{
			Dimension: 2,
			Metric:    distance.MetricL2,
		})
		require.NoError(t, err)
		require.NoError(t, col.AddOne(ctx, korpus.Document{ID: "x", Vector: []float32{1, 2}}))
	}

	require.NoError(t, db.Save(ctx))

	dropped, err := db.DeleteCollection(ctx, "drop")
	require.NoError(t, err)
	require.True(t, dropped)

	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Close())

	db, err = korpus.Open(ctx, korpus.WithLocalStore(dir))
	require.NoError(t, err)
	defer db.Close()

	infos := db.ListCollections()
	require.Len(t, infos, 1)
	assert.Equal(t, "keep", infos[0].Name)

	_, err = db.Collection("drop")
	require.ErrorIs(t, err, korpus.ErrNotFound)
}
