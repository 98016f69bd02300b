// Package lexical defines the interface for lexical (keyword) search indexes.
//
// Lexical indexes supply the keyword half of hybrid retrieval: their ranked
// candidates are fused with vector-search ranks via Reciprocal Rank Fusion.
//
// # Built-in Implementation
//
// The bm25 subpackage provides a BM25-based in-memory index:
//
//	idx := bm25.New()
//	_ = idx.Add("doc-1", "the quick brown fox")
//	candidates, _ := idx.Search(ctx, "fox", 10)
//
// # Custom Implementations
//
// Any keyword backend can participate in hybrid retrieval by implementing
// Index and returning candidates ordered by descending score.
package lexical
