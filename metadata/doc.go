// Package metadata provides typed metadata storage and predicate filtering
// for korpus collections.
//
// Documents map field names to tagged-union Values; predicates are a closed
// operator set evaluated recursively, so filter behavior stays predictable
// and cheap. A Roaring Bitmap inverted index accelerates equality-shaped
// predicates during hybrid search.
//
// # Metadata Types
//
// Metadata values can be:
//
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{...})
//
// Example:
//
//	doc := metadata.Document{
//	    "category": metadata.String("tech"),
//	    "year": metadata.Int(2024),
//	    "published": metadata.Bool(true),
//	}
//
// # Predicates
//
// Build filters with the closed operator set:
//
//   - Eq, Ne, Gt, Gte, Lt, Lte: field comparisons
//   - In, Nin: set membership
//   - And, Or: boolean composition
//
// Example:
//
//	pred := metadata.And(
//	    metadata.Eq("category", metadata.String("tech")),
//	    metadata.Gte("year", metadata.Int(2023)),
//	)
//
// Mongo-style filter documents parse into the same tree:
//
//	pred, err := metadata.ParsePredicateJSON([]byte(`{"year": {"$gte": 2023}}`))
//
// A document lacking a referenced field never matches the positive operators
// but does match Ne and Nin; the negative forms hold vacuously.
package metadata
