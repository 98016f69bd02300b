// Package visited tracks the slots touched by one graph traversal. A bitset
// carries membership and a dirty list makes Reset proportional to the number
// of visited slots, so pooled sets recycle cheaply between searches.
package visited

// Set records visited slots for a single traversal.
type Set struct {
	bits  []uint64
	dirty []uint32
}

// New creates a set sized for the given number of slots. The set grows on
// demand when visited slots exceed the capacity.
func New(capacity int) *Set {
	return &Set{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]uint32, 0, 128),
	}
}

// Visit marks a slot as visited.
func (s *Set) Visit(slot uint32) {
	word := int(slot >> 6)
	mask := uint64(1) << (slot & 63)

	if word >= len(s.bits) {
		s.grow(word + 1)
	}

	if s.bits[word]&mask == 0 {
		s.bits[word] |= mask
		s.dirty = append(s.dirty, slot)
	}
}

// Visited reports whether the slot was marked in the current traversal.
func (s *Set) Visited(slot uint32) bool {
	word := int(slot >> 6)
	if word >= len(s.bits) {
		return false
	}
	return s.bits[word]&(uint64(1)<<(slot&63)) != 0
}

// Reset clears only the slots visited since the last reset.
func (s *Set) Reset() {
	for _, slot := range s.dirty {
		s.bits[slot>>6] &^= uint64(1) << (slot & 63)
	}
	s.dirty = s.dirty[:0]
}

// EnsureCapacity grows the bitset to hold at least capacity slots.
func (s *Set) EnsureCapacity(capacity int) {
	words := (capacity + 63) / 64
	if words > len(s.bits) {
		s.grow(words)
	}
}

func (s *Set) grow(words int) {
	newCap := max(len(s.bits)*2, words)

	bits := make([]uint64, newCap)
	copy(bits, s.bits)
	s.bits = bits
}
