// Package bm25 provides a BM25-based lexical search index.
//
// BM25 (Best Matching 25) is a ranking function used for keyword search.
// This implementation uses an in-memory inverted index keyed by external
// document id.
//
// # Usage
//
//	idx := bm25.New()
//	_ = idx.Add("doc-1", "the quick brown fox")
//	candidates, _ := idx.Search(ctx, "quick fox", 10)
//
// # Parameters
//
// Uses standard BM25 parameters: k1=1.2, b=0.75
//
// # Thread Safety
//
// The index is safe for concurrent reads and writes.
package bm25
