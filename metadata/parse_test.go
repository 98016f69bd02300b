package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicate(t *testing.T) {
	doc := Document{
		"category": String("tech"),
		"year":     Float(2024), // JSON numbers decode as float64
		"price":    Float(9.99),
	}

	tests := []struct {
		name  string
		where map[string]any
		want  bool
	}{
		{"DirectEquality", map[string]any{"category": "tech"}, true},
		{"DirectEqualityMiss", map[string]any{"category": "news"}, false},
		{"MultipleFieldsAnd", map[string]any{"category": "tech", "year": 2024.0}, true},
		{"MultipleFieldsAndMiss", map[string]any{"category": "tech", "year": 1999.0}, false},
		{"OperatorGt", map[string]any{"year": map[string]any{"$gt": 2020.0}}, true},
		{"OperatorGte", map[string]any{"year": map[string]any{"$gte": 2024.0}}, true},
		{"OperatorLt", map[string]any{"price": map[string]any{"$lt": 10.0}}, true},
		{"OperatorLte", map[string]any{"price": map[string]any{"$lte": 9.99}}, true},
		{"OperatorNe", map[string]any{"category": map[string]any{"$ne": "news"}}, true},
		{"OperatorIn", map[string]any{"category": map[string]any{"$in": []any{"news", "tech"}}}, true},
		{"OperatorNin", map[string]any{"category": map[string]any{"$nin": []any{"news"}}}, true},
		{"MultipleOperatorsAnd", map[string]any{"year": map[string]any{"$gte": 2000.0, "$lte": 2030.0}}, true},
		{"And", map[string]any{"$and": []any{
			map[string]any{"category": "tech"},
			map[string]any{"year": map[string]any{"$gt": 2020.0}},
		}}, true},
		{"Or", map[string]any{"$or": []any{
			map[string]any{"category": "news"},
			map[string]any{"year": map[string]any{"$gt": 2020.0}},
		}}, true},
		{"OrAllMiss", map[string]any{"$or": []any{
			map[string]any{"category": "news"},
			map[string]any{"year": map[string]any{"$gt": 3000.0}},
		}}, false},
		{"NestedBoolean", map[string]any{"$and": []any{
			map[string]any{"$or": []any{
				map[string]any{"category": "news"},
				map[string]any{"category": "tech"},
			}},
			map[string]any{"price": map[string]any{"$lt": 10.0}},
		}}, true},
		{"AbsentFieldGt", map[string]any{"missing": map[string]any{"$gt": 0.0}}, false},
		{"AbsentFieldNe", map[string]any{"missing": map[string]any{"$ne": "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParsePredicate(tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred.Matches(doc))
		})
	}
}

func TestParsePredicateEmpty(t *testing.T) {
	pred, err := ParsePredicate(nil)
	require.NoError(t, err)
	assert.Nil(t, pred)

	pred, err = ParsePredicate(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestParsePredicateErrors(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
	}{
		{"UnknownOperator", map[string]any{"f": map[string]any{"$regex": "x"}}},
		{"AndNotArray", map[string]any{"$and": "nope"}},
		{"OrNotArray", map[string]any{"$or": 42}},
		{"AndElementNotObject", map[string]any{"$and": []any{"nope"}}},
		{"InNotArray", map[string]any{"f": map[string]any{"$in": "nope"}}},
		{"NinNotArray", map[string]any{"f": map[string]any{"$nin": 1.0}}},
		{"UnsupportedValue", map[string]any{"f": struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePredicate(tt.where)
			require.Error(t, err)
		})
	}
}

func TestParsePredicateJSON(t *testing.T) {
	doc := Document{"cat": Float(1)}

	pred, err := ParsePredicateJSON([]byte(`{"cat": 1}`))
	require.NoError(t, err)
	assert.True(t, pred.Matches(doc))

	pred, err = ParsePredicateJSON([]byte(`{"cat": {"$in": [1, 2]}}`))
	require.NoError(t, err)
	assert.True(t, pred.Matches(doc))

	pred, err = ParsePredicateJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, pred)

	_, err = ParsePredicateJSON([]byte(`{invalid`))
	require.Error(t, err)
}
