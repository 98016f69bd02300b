// Package engine implements the per-collection core: it owns the identifier
// map, the proximity graph, the metadata store and the keyword index of one
// collection and keeps them consistent across ingestion, hybrid retrieval,
// deletion, compaction and snapshots.
//
// The engine deals in external string ids at its boundary and translates to
// graph slots internally. Searches run fully concurrently; writes serialize
// only on the slot allocator. Compaction and snapshots drain the collection
// through an operation gate, so callers may briefly observe
// ErrCollectionSealed and should retry.
//
// The root korpus package wraps this with the collection registry, catalog
// persistence, logging and metrics. Using the engine directly is supported
// for embedders that bring their own registry.
package engine
