package cache

import (
	"context"
	"encoding/binary"
	"hash/maphash"
	"sync"

	"github.com/hupe1980/korpus/resource"
)

// shardCount must stay a power of two so shard selection is a mask.
const shardCount = 64

// ShardedLRUBlockCache spreads entries over independently locked LRU
// shards to keep lock contention low under concurrent snapshot reads. The
// byte budget is split evenly; a key always hashes to the same shard.
type ShardedLRUBlockCache struct {
	seed   maphash.Seed
	shards [shardCount]*LRUBlockCache
}

// NewShardedLRUBlockCache creates a sharded cache with the given total
// capacity in bytes.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	perShard := max(capacity/shardCount, 1)

	c := &ShardedLRUBlockCache{seed: maphash.MakeSeed()}
	for i := range c.shards {
		c.shards[i] = NewLRUBlockCache(perShard, rc)
	}
	return c
}

func (c *ShardedLRUBlockCache) shard(key CacheKey) *LRUBlockCache {
	var buf [9]byte
	buf[0] = byte(key.Kind)
	binary.LittleEndian.PutUint64(buf[1:], key.Offset)

	var h maphash.Hash
	h.SetSeed(c.seed)
	_, _ = h.WriteString(key.Path)
	_, _ = h.Write(buf[:])

	return c.shards[h.Sum64()&(shardCount-1)]
}

// Get returns a cached block.
func (c *ShardedLRUBlockCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	return c.shard(key).Get(ctx, key)
}

// Set caches a block.
func (c *ShardedLRUBlockCache) Set(ctx context.Context, key CacheKey, b []byte) {
	c.shard(key).Set(ctx, key, b)
}

// Invalidate removes matching entries from every shard. Shards are swept
// in parallel; the call returns once all sweeps finish.
func (c *ShardedLRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	var wg sync.WaitGroup
	for _, shard := range c.shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shard.Invalidate(predicate)
		}()
	}
	wg.Wait()
}

// Stats returns hit and miss counters summed over all shards.
func (c *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, shard := range c.shards {
		h, m := shard.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the cached byte total over all shards.
func (c *ShardedLRUBlockCache) Size() int64 {
	var total int64
	for _, shard := range c.shards {
		total += shard.Size()
	}
	return total
}

// Close closes every shard.
func (c *ShardedLRUBlockCache) Close() error {
	for _, shard := range c.shards {
		if err := shard.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ShardStat describes one shard's load for balance diagnostics.
type ShardStat struct {
	ShardID int
	Size    int64
	Hits    int64
	Misses  int64
}

// ShardStats returns per-shard statistics.
func (c *ShardedLRUBlockCache) ShardStats() []ShardStat {
	stats := make([]ShardStat, shardCount)
	for i, shard := range c.shards {
		h, m := shard.Stats()
		stats[i] = ShardStat{ShardID: i, Size: shard.Size(), Hits: h, Misses: m}
	}
	return stats
}
