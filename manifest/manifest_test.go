package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/korpus/blobstore"
)

func TestStore_LoadBeforeCommit(t *testing.T) {
	s := NewStore(blobstore.NewMemoryStore())

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CommitLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore())

	m := New()
	m.Upsert(CollectionEntry{
		Name:      "articles",
		ID:        "c-1",
		Dimension: 128,
		Metric:    "cosine",
	})
	require.NoError(t, s.Commit(ctx, m))
	assert.Equal(t, uint64(1), m.Generation)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Generation)
	assert.Equal(t, FormatVersion, loaded.Version)

	e, ok := loaded.Lookup("articles")
	require.True(t, ok)
	assert.Equal(t, "c-1", e.ID)
	assert.Equal(t, 128, e.Dimension)
	assert.Equal(t, "cosine", e.Metric)
}

func TestStore_CurrentTracksLatestGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore())

	m := New()
	m.Upsert(CollectionEntry{Name: "a", ID: "c-1", Dimension: 4, Metric: "l2"})
	require.NoError(t, s.Commit(ctx, m))

	m.Upsert(CollectionEntry{Name: "b", ID: "c-2", Dimension: 8, Metric: "cosine"})
	require.NoError(t, s.Commit(ctx, m))
	assert.Equal(t, uint64(2), m.Generation)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Generation)
	assert.Len(t, loaded.Collections, 2)

	// Earlier generations stay readable by number.
	old, err := s.LoadGeneration(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, old.Collections, 1)

	_, err = s.LoadGeneration(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Generations(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := NewStore(bs)

	m := New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Commit(ctx, m))
	}

	// Unrelated blobs under the same prefix are ignored.
	require.NoError(t, bs.Put(ctx, "MANIFEST-garbage", []byte("x")))

	gens, err := s.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, gens)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore())

	m := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Commit(ctx, m))
	}

	deleted, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	gens, err := s.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, gens)

	// CURRENT still resolves after pruning.
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), loaded.Generation)

	// Pruning below one kept generation is clamped.
	deleted, err = s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestStore_CommitRollsBackOnPointerFailure(t *testing.T) {
	ctx := context.Background()
	bs := newFailingCurrentStore()
	s := NewStore(bs)

	m := New()
	err := s.Commit(ctx, m)
	require.ErrorIs(t, err, blobstore.ErrConcurrentModification)
	assert.Equal(t, uint64(0), m.Generation)

	// The next attempt reuses the generation number.
	bs.fail = false
	require.NoError(t, s.Commit(ctx, m))
	assert.Equal(t, uint64(1), m.Generation)
}

func TestManifest_UpsertRemove(t *testing.T) {
	m := New()
	m.Upsert(CollectionEntry{Name: "a", ID: "c-1", Dimension: 4})
	m.Upsert(CollectionEntry{Name: "b", ID: "c-2", Dimension: 8})
	m.Upsert(CollectionEntry{Name: "a", ID: "c-1", Dimension: 4, Graph: "snapshots/c-1/graph"})

	require.Len(t, m.Collections, 2)
	e, ok := m.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "snapshots/c-1/graph", e.Graph)

	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	_, ok = m.Lookup("a")
	assert.False(t, ok)
}

func TestManifest_BlobKeys(t *testing.T) {
	m := New()
	m.Upsert(CollectionEntry{
		Name:       "a",
		Graph:      "snapshots/c-1/graph",
		Documents:  "snapshots/c-1/documents",
		Tombstones: "snapshots/c-1/tombstones",
	})
	m.Upsert(CollectionEntry{Name: "b"}) // never persisted

	assert.ElementsMatch(t, []string{
		"snapshots/c-1/graph",
		"snapshots/c-1/documents",
		"snapshots/c-1/tombstones",
	}, m.BlobKeys())
}

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		name string
		gen  uint64
		ok   bool
	}{
		{"MANIFEST-000001.json", 1, true},
		{"MANIFEST-123456.json", 123456, true},
		{"MANIFEST-1000000.json", 1000000, true},
		{"MANIFEST-000001.bin", 0, false},
		{"MANIFEST-garbage", 0, false},
		{"CURRENT", 0, false},
	}
	for _, tt := range tests {
		gen, ok := ParseGeneration(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.gen, gen, tt.name)
		}
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	assert.Equal(t, "MANIFEST-000042.json", Filename(42))
	gen, ok := ParseGeneration(Filename(42))
	require.True(t, ok)
	assert.Equal(t, uint64(42), gen)
}

// failingCurrentStore rejects CURRENT pointer writes until fail is cleared,
// mimicking a lost conditional write on a commit store.
type failingCurrentStore struct {
	*blobstore.MemoryStore
	fail bool
}

func newFailingCurrentStore() *failingCurrentStore {
	return &failingCurrentStore{MemoryStore: blobstore.NewMemoryStore(), fail: true}
}

func (s *failingCurrentStore) Put(ctx context.Context, name string, data []byte) error {
	if s.fail && name == CurrentName {
		return blobstore.ErrConcurrentModification
	}
	return s.MemoryStore.Put(ctx, name, data)
}
