package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/korpus/resource"
)

// LRUBlockCache is a byte-budgeted LRU over immutable blocks. Eviction is
// by total byte size, not entry count, since block sizes vary between the
// configured block size and the tail of a blob.
//
// Recency is kept in an intrusive doubly-linked list threaded through the
// map entries; head is most recent.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	entries  map[CacheKey]*lruEntry
	head     *lruEntry
	tail     *lruEntry
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key        CacheKey
	data       []byte
	prev, next *lruEntry
}

// NewLRUBlockCache creates a cache holding at most capacity bytes. A
// non-nil controller charges cached bytes against the process memory
// budget; when the budget is exhausted new blocks are dropped instead of
// blocking.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		entries:  make(map[CacheKey]*lruEntry),
		rc:       rc,
	}
}

// Get returns a cached block and marks it most recently used.
func (c *LRUBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.moveToFront(e)
	return e.data, true
}

// Set caches a block. Oversized blocks and blocks that do not fit the
// memory budget are silently dropped; Set never blocks.
func (c *LRUBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	want := int64(len(b))
	if want > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.replace(e, b)
		return
	}

	// Evict before acquiring so freed bytes return to the controller first.
	for c.size+want > c.capacity && c.tail != nil {
		c.remove(c.tail)
	}
	if c.rc != nil && !c.rc.TryAcquireMemory(want) {
		return
	}

	e := &lruEntry{key: key, data: b}
	c.entries[key] = e
	c.pushFront(e)
	c.size += want
}

// replace swaps the payload of an existing entry, keeping the old payload
// when the memory budget denies the growth.
func (c *LRUBlockCache) replace(e *lruEntry, b []byte) {
	c.moveToFront(e)

	oldSize, newSize := int64(len(e.data)), int64(len(b))
	switch {
	case newSize > oldSize:
		if c.rc != nil && !c.rc.TryAcquireMemory(newSize-oldSize) {
			return
		}
	case newSize < oldSize:
		if c.rc != nil {
			c.rc.ReleaseMemory(oldSize - newSize)
		}
	}

	e.data = b
	c.size += newSize - oldSize
	for c.size > c.capacity && c.tail != nil {
		c.remove(c.tail)
	}
}

// Invalidate removes every entry the predicate matches.
func (c *LRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *lruEntry
	for e := c.head; e != nil; e = next {
		next = e.next
		if predicate(e.key) {
			c.remove(e)
		}
	}
}

// Stats returns the hit and miss counters.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached byte total.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close implements BlockCache; the cache holds no external resources.
func (c *LRUBlockCache) Close() error { return nil }

func (c *LRUBlockCache) remove(e *lruEntry) {
	c.unlink(e)
	delete(c.entries, e.key)
	n := int64(len(e.data))
	c.size -= n
	if c.rc != nil {
		c.rc.ReleaseMemory(n)
	}
}

func (c *LRUBlockCache) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *LRUBlockCache) moveToFront(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *LRUBlockCache) unlink(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
