package integration_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/metadata"
)

func newCollection(t *testing.T, metric distance.Metric, dim int) *korpus.Collection {
	t.Helper()

	db, err := korpus.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	col, err := db.CreateCollection(context.Background(), "test", korpus.CollectionConfig{
		Dimension: dim,
		Metric:    metric,
	})
	require.NoError(t, err)

	return col
}

func TestCRUD_AllMetrics(t *testing.T) {
	metrics := []distance.Metric{distance.MetricL2, distance.MetricCosine, distance.MetricDot}

	for _, metric := range metrics {
		t.Run(metric.String(), func(t *testing.T) {
			ctx := context.Background()
			col := newCollection(t, metric, 3)

			// The ranking a > b > c holds under all three metrics.
			_, err := col.Add(ctx, []korpus.Document{
				{ID: "a", Vector: []float32{1, 0, 0}},
				{ID: "b", Vector: []float32{0.7, 0.7, 0}},
				{ID: "c", Vector: []float32{0, 0, 1}},
			})
			require.NoError(t, err)

			hits, err := col.Query(ctx, korpus.Query{Vector: []float32{1, 0, 0}, K: 3})
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, "a", hits[0].ID)
			assert.Equal(t, "b", hits[1].ID)
			assert.Equal(t, "c", hits[2].ID)

			// Delete the middle result and query again.
			deleted, err := col.Delete(ctx, "b")
			require.NoError(t, err)
			require.Equal(t, 1, deleted)

			hits, err = col.Query(ctx, korpus.Query{Vector: []float32{1, 0, 0}, K: 3})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "a", hits[0].ID)
			assert.Equal(t, "c", hits[1].ID)

			_, err = col.Get(ctx, "b")
			require.ErrorIs(t, err, korpus.ErrNotFound)

			// A deleted id is free for reuse.
			require.NoError(t, col.AddOne(ctx, korpus.Document{ID: "b", Vector: []float32{0.5, 0.5, 0}}))

			doc, err := col.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, []float32{0.5, 0.5, 0}, doc.Vector)
		})
	}
}

func TestCRUD_Upsert(t *testing.T) {
	ctx := context.Background()
	col := newCollection(t, distance.MetricL2, 2)

	require.NoError(t, col.AddOne(ctx, korpus.Document{
		ID:     "doc",
		Vector: []float32{1, 0},
		Text:   "old text",
		Metadata: metadata.Document{
			"rev": metadata.Int(1),
		},
	}))

	// Plain re-add of a live id is rejected.
	err := col.AddOne(ctx, korpus.Document{ID: "doc", Vector: []float32{0, 1}})
	require.ErrorIs(t, err, korpus.ErrInvalidArgument)

	// Upsert replaces vector, text, and metadata.
	require.NoError(t, col.AddOne(ctx, korpus.Document{
		ID:     "doc",
		Vector: []float32{0, 1},
		Text:   "new text",
		Metadata: metadata.Document{
			"rev": metadata.Int(2),
		},
	}, func(o *korpus.AddOptions) {
		o.Upsert = true
	}))

	require.Equal(t, 1, col.Count())

	doc, err := col.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, doc.Vector)
	assert.Equal(t, "new text", doc.Text)
	assert.Equal(t, metadata.Int(2), doc.Metadata["rev"])

	// The graph serves the replacement, not the old vector.
	hits, err := col.Query(ctx, korpus.Query{Vector: []float32{0, 1}, K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc", hits[0].ID)

	// The keyword index follows the replacement too.
	hits, err = col.Query(ctx, korpus.Query{Text: "new", K: 1, KeywordOnly: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = col.Query(ctx, korpus.Query{Text: "old", K: 1, KeywordOnly: true})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHybrid_FusedRanking(t *testing.T) {
	ctx := context.Background()
	col := newCollection(t, distance.MetricCosine, 3)

	_, err := col.Add(ctx, []korpus.Document{
		{ID: "a-1", Vector: []float32{1, 0, 0}, Text: "solar energy on rooftops"},
		{ID: "a-2", Vector: []float32{0.8, 0.2, 0}, Text: "wind turbines offshore"},
		{ID: "a-3", Vector: []float32{0, 0, 1}, Text: "city bicycle lanes"},
	})
	require.NoError(t, err)

	// a-2 ranks second by vector but first by keyword; fusion lifts it
	// above the pure vector winner.
	hits, err := col.Query(ctx, korpus.Query{
		Vector: []float32{1, 0, 0},
		Text:   "wind turbines",
		K:      3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a-2", hits[0].ID)
	assert.Equal(t, 2, hits[0].VectorRank)
	assert.Equal(t, 1, hits[0].TextRank)

	// A document found by only one ranker still shows up, with the other
	// rank reported as zero.
	var other *korpus.Result
	for i := range hits {
		if hits[i].ID == "a-3" {
			other = &hits[i]
		}
	}
	require.NotNil(t, other)
	assert.Zero(t, other.TextRank)
	assert.Positive(t, other.VectorRank)
}

func TestHybrid_FilteredSearch(t *testing.T) {
	ctx := context.Background()
	col := newCollection(t, distance.MetricL2, 2)

	docs := make([]korpus.Document, 0, 100)
	for i := 0; i < 100; i++ {
		docs = append(docs, korpus.Document{
			ID:     docID(i),
			Vector: []float32{float32(i), 0},
			Metadata: metadata.Document{
				"even": metadata.Bool(i%2 == 0),
				"n":    metadata.Int(int64(i)),
			},
		})
	}

	_, err := col.Add(ctx, docs)
	require.NoError(t, err)

	// Only even documents below 20 qualify; the nearest of those to the
	// query vector [9, 0] are 8 and 10.
	hits, err := col.Query(ctx, korpus.Query{
		Vector: []float32{9, 0},
		K:      2,
		EF:     128,
		Filter: map[string]any{
			"even": true,
			"n":    map[string]any{"$lt": 20},
		},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	got := []string{hits[0].ID, hits[1].ID}
	assert.ElementsMatch(t, []string{docID(8), docID(10)}, got)

	// A filter that matches nothing yields no results, not an error.
	hits, err = col.Query(ctx, korpus.Query{
		Vector: []float32{9, 0},
		K:      2,
		Filter: map[string]any{"n": map[string]any{"$gt": 1000}},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func docID(i int) string {
	return fmt.Sprintf("doc-%02d", i)
}
