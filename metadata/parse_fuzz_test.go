package metadata

import (
	"testing"
)

// FuzzParsePredicateJSON feeds arbitrary filter documents through the parser.
// Whatever survives parsing must evaluate without panicking.
func FuzzParsePredicateJSON(f *testing.F) {
	// Valid filters in every supported shape.
	f.Add([]byte(`{"category": "tech"}`))
	f.Add([]byte(`{"year": {"$gte": 2020, "$lt": 2030}}`))
	f.Add([]byte(`{"tags": {"$in": ["a", "b"]}, "active": true}`))
	f.Add([]byte(`{"$and": [{"a": 1}, {"$or": [{"b": 2}, {"c": {"$ne": null}}]}]}`))
	f.Add([]byte(`{"score": {"$nin": [1.5, 2.5]}}`))

	// Malformed and hostile inputs.
	f.Add([]byte(``))
	f.Add([]byte(`{`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{"f": {"$regex": ".*"}}`))
	f.Add([]byte(`{"$and": "not-an-array"}`))
	f.Add([]byte(`{"a": {"b": {"c": {"d": 1}}}}`))

	doc := Document{
		"category": String("tech"),
		"year":     Float(2024),
		"active":   Bool(true),
		"tags":     Array([]Value{String("a"), String("c")}),
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<16 {
			t.Skip()
		}

		pred, err := ParsePredicateJSON(data)
		if err != nil {
			// Expected for most random input.
			return
		}
		if pred == nil {
			return
		}

		// Evaluation must be total: any parsed predicate answers for any
		// document, matching or not.
		_ = pred.Matches(doc)
		_ = pred.Matches(Document{})
	})
}
