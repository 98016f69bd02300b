package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapKey(blob string, block uint64) CacheKey {
	return CacheKey{Kind: CacheKindBlob, Path: blob, Offset: block}
}

func TestShardedLRUBlockCache_SetGet(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	ctx := context.Background()

	c.Set(ctx, snapKey("col/graph", 0), []byte("adjacency"))

	got, ok := c.Get(ctx, snapKey("col/graph", 0))
	require.True(t, ok)
	assert.Equal(t, []byte("adjacency"), got)

	_, ok = c.Get(ctx, snapKey("col/graph", 7))
	assert.False(t, ok)
}

func TestShardedLRUBlockCache_Distribution(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	data := make([]byte, 1024)

	for i := range 1000 {
		c.Set(ctx, snapKey(fmt.Sprintf("blob-%d", i%100), uint64(i)), data)
	}

	populated := 0
	for _, s := range c.ShardStats() {
		if s.Size > 0 {
			populated++
		}
	}
	// 1000 hashed keys over 64 shards should touch nearly all of them;
	// fewer than half means the hash is clumping.
	assert.GreaterOrEqual(t, populated, 32, "poor shard distribution")
}

func TestShardedLRUBlockCache_Concurrent(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	data := make([]byte, 1024)

	const workers, ops = 100, 1000

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob := fmt.Sprintf("blob-%d", w)
			for i := range ops {
				c.Set(ctx, snapKey(blob, uint64(i)), data)
				c.Get(ctx, snapKey(blob, uint64(i)))
			}
		}()
	}
	wg.Wait()

	hits, misses := c.Stats()
	assert.Equal(t, int64(workers*ops), hits+misses)
}

func TestShardedLRUBlockCache_Invalidate(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()

	for i := range uint64(100) {
		c.Set(ctx, snapKey("keep", i), []byte("x"))
		c.Set(ctx, snapKey("drop", i), []byte("x"))
	}

	c.Invalidate(func(key CacheKey) bool { return key.Path == "drop" })

	_, ok := c.Get(ctx, snapKey("drop", 0))
	assert.False(t, ok)
	_, ok = c.Get(ctx, snapKey("keep", 0))
	assert.True(t, ok)
	assert.Equal(t, int64(100), c.Size())
}

func BenchmarkLRUBlockCache_Get(b *testing.B) {
	c := NewLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	c.Set(ctx, snapKey("blob", 0), make([]byte, 4096))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Get(ctx, snapKey("blob", 0))
		}
	})
}

func BenchmarkShardedLRUBlockCache_Get(b *testing.B) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	data := make([]byte, 4096)
	for i := range uint64(1000) {
		c.Set(ctx, snapKey(fmt.Sprintf("blob-%d", i%10), i), data)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var i uint64
		for pb.Next() {
			c.Get(ctx, snapKey(fmt.Sprintf("blob-%d", i%10), i))
			i++
		}
	})
}
