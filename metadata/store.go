package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Store combines per-slot metadata storage with a Roaring Bitmap inverted
// index for fast predicate pre-selection during hybrid search.
//
// Architecture:
//   - Primary storage: map[uint32]Document (metadata by slot)
//   - Inverted index: map[field]map[valueKey]*roaring.Bitmap (posting lists)
//
// Equality-shaped predicates (Eq, In, and And/Or trees of those) compile to
// bitmap operations; everything else falls back to evaluating Matches against
// the stored document.
type Store struct {
	mu sync.RWMutex

	documents map[uint32]Document

	// field -> valueKey -> bitmap of slots
	inverted map[string]map[string]*roaring.Bitmap
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{
		documents: make(map[uint32]Document),
		inverted:  make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores metadata for a slot and updates the inverted index.
// This replaces any existing metadata for the slot.
func (s *Store) Set(slot uint32, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldDoc, exists := s.documents[slot]; exists {
		s.removeFromIndexLocked(slot, oldDoc)
	}

	if doc == nil {
		doc = Document{}
	}

	s.documents[slot] = doc
	s.addToIndexLocked(slot, doc)
}

// Get retrieves metadata for a slot.
func (s *Store) Get(slot uint32) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[slot]
	return doc, ok
}

// Delete removes metadata for a slot and updates the inverted index.
func (s *Store) Delete(slot uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, exists := s.documents[slot]; exists {
		s.removeFromIndexLocked(slot, doc)
	}

	delete(s.documents, slot)
}

// Len returns the number of documents in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.documents)
}

// Remap renumbers slots after compaction. Slots absent from the mapping are
// dropped. Must only be called while the owner holds exclusive access to the
// collection (no concurrent readers or writers).
func (s *Store) Remap(oldToNew map[uint32]uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	documents := make(map[uint32]Document, len(oldToNew))
	for oldSlot, doc := range s.documents {
		if newSlot, ok := oldToNew[oldSlot]; ok {
			documents[newSlot] = doc
		}
	}

	s.documents = documents
	s.inverted = make(map[string]map[string]*roaring.Bitmap)
	for slot, doc := range s.documents {
		s.addToIndexLocked(slot, doc)
	}
}

// addToIndexLocked adds a document to the inverted index.
// Caller must hold s.mu.Lock().
func (s *Store) addToIndexLocked(slot uint32, doc Document) {
	for key, value := range doc {
		valueMap, ok := s.inverted[key]
		if !ok {
			valueMap = make(map[string]*roaring.Bitmap)
			s.inverted[key] = valueMap
		}

		valueKey := value.Key()
		bitmap, ok := valueMap[valueKey]
		if !ok {
			bitmap = roaring.New()
			valueMap[valueKey] = bitmap
		}

		bitmap.Add(slot)
	}
}

// removeFromIndexLocked removes a document from the inverted index.
// Caller must hold s.mu.Lock().
func (s *Store) removeFromIndexLocked(slot uint32, doc Document) {
	for key, value := range doc {
		valueMap, ok := s.inverted[key]
		if !ok {
			continue
		}

		valueKey := value.Key()
		bitmap, ok := valueMap[valueKey]
		if !ok {
			continue
		}

		bitmap.Remove(slot)

		if bitmap.IsEmpty() {
			delete(valueMap, valueKey)
			if len(valueMap) == 0 {
				delete(s.inverted, key)
			}
		}
	}
}

// Bitmap compiles a predicate into a bitmap of matching slots. The second
// return value reports whether the predicate was compilable: only Eq, In, and
// And/Or compositions of compilable children have bitmap form. Callers must
// fall back to Matches-based evaluation when ok is false.
func (s *Store) Bitmap(p *Predicate) (*roaring.Bitmap, bool) {
	if p == nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.compileLocked(p)
}

func (s *Store) compileLocked(p *Predicate) (*roaring.Bitmap, bool) {
	switch p.Op {
	case OpEq:
		if bm := s.getBitmapLocked(p.Field, p.Value); bm != nil {
			return bm.Clone(), true
		}
		return roaring.New(), true

	case OpIn:
		arr, ok := p.Value.AsArray()
		if !ok {
			return nil, false
		}
		result := roaring.New()
		for _, v := range arr {
			if bm := s.getBitmapLocked(p.Field, v); bm != nil {
				result.Or(bm)
			}
		}
		return result, true

	case OpAnd:
		var result *roaring.Bitmap
		for _, sub := range p.Preds {
			bm, ok := s.compileLocked(sub)
			if !ok {
				return nil, false
			}
			if result == nil {
				result = bm
			} else {
				result.And(bm)
			}
			if result.IsEmpty() {
				return result, true
			}
		}
		if result == nil {
			return roaring.New(), true
		}
		return result, true

	case OpOr:
		result := roaring.New()
		for _, sub := range p.Preds {
			bm, ok := s.compileLocked(sub)
			if !ok {
				return nil, false
			}
			result.Or(bm)
		}
		return result, true

	default:
		// Ne, Gt, Gte, Lt, Lte, Nin have no posting-list form.
		return nil, false
	}
}

// getBitmapLocked retrieves the bitmap for a specific field=value combination.
// Returns nil if no matches exist. Caller must hold s.mu.RLock().
func (s *Store) getBitmapLocked(key string, value Value) *roaring.Bitmap {
	valueMap, ok := s.inverted[key]
	if !ok {
		return nil
	}

	bitmap, ok := valueMap[value.Key()]
	if !ok {
		return nil
	}

	return bitmap
}

// FilterFunc creates a slot membership test for a predicate.
//
// Fast path: compilable predicates test against a bitmap snapshot. Slow path:
// the predicate is evaluated against the stored document per slot. A slot
// without a stored document never matches positive predicates but may match
// purely negative ones (Ne, Nin), mirroring absent-field semantics.
func (s *Store) FilterFunc(p *Predicate) func(uint32) bool {
	if p == nil {
		return nil
	}

	if bitmap, ok := s.Bitmap(p); ok {
		return func(slot uint32) bool {
			return bitmap.Contains(slot)
		}
	}

	return func(slot uint32) bool {
		doc, ok := s.Get(slot)
		if !ok {
			doc = Document{}
		}
		return p.Matches(doc)
	}
}

// Stats describes store and index size.
type Stats struct {
	DocumentCount    int
	FieldCount       int
	BitmapCount      int
	TotalCardinality uint64
	MemoryBytes      uint64
}

// GetStats returns statistics about the store.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		DocumentCount: len(s.documents),
		FieldCount:    len(s.inverted),
	}

	for _, valueMap := range s.inverted {
		for _, bitmap := range valueMap {
			stats.BitmapCount++
			stats.TotalCardinality += bitmap.GetCardinality()
			stats.MemoryBytes += bitmap.GetSizeInBytes()
		}
	}

	return stats
}
