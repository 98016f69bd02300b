// Package manifest maintains the collection catalog.
//
// A Manifest is an immutable, numbered generation of the catalog: the set of
// collections and the blob keys of their persisted snapshots. Each commit
// writes a new MANIFEST-<generation>.json blob and then repoints the CURRENT
// blob at it, so readers always observe a complete catalog and a crashed
// commit leaves at most an orphaned manifest blob behind.
package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ManifestPrefix is the blob key prefix shared by all manifest generations.
	ManifestPrefix = "MANIFEST"
	// CurrentName is the blob key of the pointer to the latest generation.
	CurrentName = "CURRENT"
	// FormatVersion is the manifest format version written by Commit.
	FormatVersion = 1
)

// Manifest is one generation of the collection catalog.
type Manifest struct {
	Version     int               `json:"version"`
	Generation  uint64            `json:"generation"`
	CreatedAt   time.Time         `json:"created_at"`
	Collections []CollectionEntry `json:"collections"`
}

// CollectionEntry records a collection and the blob keys of its snapshot.
// The snapshot keys are empty for a collection that has never been persisted.
type CollectionEntry struct {
	Name       string    `json:"name"`
	ID         string    `json:"id"`
	Dimension  int       `json:"dimension"`
	Metric     string    `json:"metric"`
	CreatedAt  time.Time `json:"created_at"`
	Graph      string    `json:"graph,omitempty"`
	Documents  string    `json:"documents,omitempty"`
	Tombstones string    `json:"tombstones,omitempty"`
}

// New returns an empty manifest at generation zero.
func New() *Manifest {
	return &Manifest{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
	}
}

// Lookup returns the entry for the named collection.
func (m *Manifest) Lookup(name string) (CollectionEntry, bool) {
	for _, e := range m.Collections {
		if e.Name == name {
			return e, true
		}
	}
	return CollectionEntry{}, false
}

// Upsert replaces the entry with the same name, or appends it.
func (m *Manifest) Upsert(e CollectionEntry) {
	for i := range m.Collections {
		if m.Collections[i].Name == e.Name {
			m.Collections[i] = e
			return
		}
	}
	m.Collections = append(m.Collections, e)
}

// Remove deletes the entry for the named collection and reports whether it
// was present.
func (m *Manifest) Remove(name string) bool {
	for i := range m.Collections {
		if m.Collections[i].Name == name {
			m.Collections = append(m.Collections[:i], m.Collections[i+1:]...)
			return true
		}
	}
	return false
}

// BlobKeys returns every snapshot blob key referenced by the manifest.
// Used to decide which blobs are still live when sweeping old snapshots.
func (m *Manifest) BlobKeys() []string {
	var keys []string
	for _, e := range m.Collections {
		for _, k := range []string{e.Graph, e.Documents, e.Tombstones} {
			if k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Filename returns the blob key of the given manifest generation.
// Generations are zero-padded so lexicographic blob listings sort numerically.
func Filename(generation uint64) string {
	return fmt.Sprintf("%s-%06d.json", ManifestPrefix, generation)
}

// ParseGeneration extracts the generation from a manifest blob key.
func ParseGeneration(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, ManifestPrefix+"-")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".json")
	if !ok {
		return 0, false
	}
	gen, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}
