// Package cache provides in-memory LRU caching for immutable block data.
//
// The cache sits between the engine and remote blob storage: reads of
// snapshot blobs are served block-wise, and hot blocks are kept in RAM so
// repeated loads do not touch the network. Because snapshot blobs are
// written once and never modified, entries never go stale; invalidation is
// only needed when a blob is deleted.
//
// ShardedLRUBlockCache distributes entries across 64 shards to keep lock
// contention low under concurrent reads. Memory consumption can be bounded
// globally by wiring a resource.Controller; blocks that would exceed the
// global budget are simply not cached.
//
// Returned slices are read-only. Callers must never mutate a slice
// obtained from Get, nor one handed to Set.
package cache
