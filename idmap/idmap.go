// Package idmap maintains the bidirectional mapping between caller-supplied
// string document identifiers and the compact integer slots used by the graph
// index.
//
// Slots are assigned once and grow monotonically; releasing an identifier
// tombstones its slot without making the number reusable. Only a compaction
// pass renumbers the slot space, via Remap, and the owning engine must hold
// exclusive access while it runs because searches cache slot positions.
package idmap

import (
	"errors"
	"iter"
	"sync"
)

var (
	// ErrNotFound is returned when an external id is absent or tombstoned.
	ErrNotFound = errors.New("idmap: id not found")

	// ErrAlreadyExists is returned when allocating an id that is still live.
	ErrAlreadyExists = errors.New("idmap: id already exists")
)

// Map is the per-collection identifier map. All operations are O(1); Allocate
// and Release serialize on one writer lock, which is the collection's only
// hard serialization point.
type Map struct {
	mu      sync.RWMutex
	forward map[string]uint32
	reverse map[uint32]string
	next    uint32
}

// New creates an empty identifier map.
func New() *Map {
	return &Map{
		forward: make(map[string]uint32),
		reverse: make(map[uint32]string),
	}
}

// Allocate assigns a fresh slot to id. It fails with ErrAlreadyExists while
// the id is live; a released id may be allocated again and receives a new,
// unrelated slot.
func (m *Map) Allocate(id string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forward[id]; ok {
		return 0, ErrAlreadyExists
	}

	slot := m.next
	m.next++

	m.forward[id] = slot
	m.reverse[slot] = id

	return slot, nil
}

// Resolve returns the live slot for id, or ErrNotFound when the id is absent
// or tombstoned.
func (m *Map) Resolve(id string) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot, ok := m.forward[id]
	if !ok {
		return 0, ErrNotFound
	}

	return slot, nil
}

// ResolveSlot returns the external id owning a live slot.
func (m *Map) ResolveSlot(slot uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.reverse[slot]
	return id, ok
}

// Release tombstones the slot held by id and returns it. A second Release of
// the same id fails with ErrNotFound, which makes delete retries safe.
func (m *Map) Release(id string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.forward[id]
	if !ok {
		return 0, ErrNotFound
	}

	delete(m.forward, id)
	delete(m.reverse, slot)

	return slot, nil
}

// Restore installs a mapping with an externally chosen slot. Used when
// rebuilding the map from a persisted metadata table; next is bumped past the
// highest restored slot.
func (m *Map) Restore(id string, slot uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forward[id]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.reverse[slot]; ok {
		return ErrAlreadyExists
	}

	m.forward[id] = slot
	m.reverse[slot] = id

	if slot >= m.next {
		m.next = slot + 1
	}

	return nil
}

// Remap renumbers the slot space after compaction. Ids whose old slot is
// missing from the mapping are dropped; next restarts directly above the new
// dense range. Caller must hold exclusive access to the collection.
func (m *Map) Remap(oldToNew map[uint32]uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	forward := make(map[string]uint32, len(oldToNew))
	reverse := make(map[uint32]string, len(oldToNew))

	var next uint32
	for id, oldSlot := range m.forward {
		newSlot, ok := oldToNew[oldSlot]
		if !ok {
			continue
		}
		forward[id] = newSlot
		reverse[newSlot] = id
		if newSlot >= next {
			next = newSlot + 1
		}
	}

	m.forward = forward
	m.reverse = reverse
	m.next = next
}

// SetNext raises the next fresh slot number. Used after loading a snapshot
// whose graph contains tombstoned slots beyond any live id.
func (m *Map) SetNext(next uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next > m.next {
		m.next = next
	}
}

// Next returns the next fresh slot number, equal to the number of slots ever
// allocated since the last compaction.
func (m *Map) Next() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.next
}

// Len returns the number of live ids.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.forward)
}

// All iterates over live (id, slot) pairs. The map must not be mutated during
// iteration; the engine persists under its write gate.
func (m *Map) All() iter.Seq2[string, uint32] {
	return func(yield func(string, uint32) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		for id, slot := range m.forward {
			if !yield(id, slot) {
				return
			}
		}
	}
}
