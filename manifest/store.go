package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/codec"
)

// ErrNotFound is returned by Load when no catalog has been committed yet.
var ErrNotFound = errors.New("manifest: not found")

// Store reads and commits catalog generations against a BlobStore.
//
// Commit is a two-phase write: the manifest blob first, the CURRENT pointer
// second. On stores with conditional writes (DDBCommitStore) the pointer
// update fails with blobstore.ErrConcurrentModification when another writer
// committed in between; the caller should reload and retry.
type Store struct {
	store blobstore.BlobStore
	codec codec.Codec
	mu    sync.Mutex
}

// NewStore creates a manifest store on top of the given blob store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store, codec: codec.Default}
}

// Load returns the manifest the CURRENT pointer refers to.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.readBlob(ctx, CurrentName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.load(ctx, string(name))
}

// LoadGeneration returns a specific manifest generation, bypassing CURRENT.
func (s *Store) LoadGeneration(ctx context.Context, generation uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(ctx, Filename(generation))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *Store) load(ctx context.Context, name string) (*Manifest, error) {
	data, err := s.readBlob(ctx, name)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", name, err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("manifest: unsupported version %d in %s (expected %d)", m.Version, name, FormatVersion)
	}
	return &m, nil
}

func (s *Store) readBlob(ctx context.Context, name string) ([]byte, error) {
	b, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	data := make([]byte, b.Size())
	if _, err := b.ReadAt(ctx, data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

// Commit writes m as the next generation and repoints CURRENT at it.
//
// The generation counter and timestamp are assigned here. If the pointer
// update fails the counter is rolled back so the caller can reload, merge and
// retry with the same manifest value.
func (s *Store) Commit(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = FormatVersion
	m.Generation++
	m.CreatedAt = time.Now().UTC()

	data, err := s.codec.Marshal(m)
	if err != nil {
		m.Generation--
		return err
	}

	name := Filename(m.Generation)
	if err := s.store.Put(ctx, name, data); err != nil {
		m.Generation--
		return err
	}
	if err := s.store.Put(ctx, CurrentName, []byte(name)); err != nil {
		// The orphaned manifest blob is harmless; Prune collects it later.
		m.Generation--
		return err
	}
	return nil
}

// Generations returns all committed generations in ascending order.
func (s *Store) Generations(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations(ctx)
}

func (s *Store) generations(ctx context.Context) ([]uint64, error) {
	names, err := s.store.List(ctx, ManifestPrefix+"-")
	if err != nil {
		return nil, err
	}
	gens := make([]uint64, 0, len(names))
	for _, name := range names {
		if gen, ok := ParseGeneration(name); ok {
			gens = append(gens, gen)
		}
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// Prune deletes all but the newest keep generations and returns how many
// manifest blobs were removed. Snapshot blobs are not touched; sweeping those
// is the caller's job via Manifest.BlobKeys.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 1 {
		keep = 1
	}
	gens, err := s.generations(ctx)
	if err != nil {
		return 0, err
	}
	if len(gens) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, gen := range gens[:len(gens)-keep] {
		if err := s.store.Delete(ctx, Filename(gen)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
