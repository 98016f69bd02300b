package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicateMatches(t *testing.T) {
	doc := Document{
		"category": String("tech"),
		"year":     Int(2024),
		"price":    Float(9.99),
		"featured": Bool(true),
	}

	tests := []struct {
		name string
		pred *Predicate
		want bool
	}{
		{"EqString", Eq("category", String("tech")), true},
		{"EqStringMiss", Eq("category", String("news")), false},
		{"EqInt", Eq("year", Int(2024)), true},
		{"EqIntFloatCross", Eq("year", Float(2024)), true},
		{"EqBool", Eq("featured", Bool(true)), true},
		{"Ne", Ne("category", String("news")), true},
		{"NeMiss", Ne("category", String("tech")), false},
		{"Gt", Gt("year", Int(2020)), true},
		{"GtEqualBoundary", Gt("year", Int(2024)), false},
		{"Gte", Gte("year", Int(2024)), true},
		{"Lt", Lt("price", Float(10)), true},
		{"LtMiss", Lt("price", Float(9.99)), false},
		{"Lte", Lte("price", Float(9.99)), true},
		{"GtNonNumericField", Gt("category", Int(1)), false},
		{"GtNonNumericValue", Gt("year", String("2020")), false},
		{"In", In("category", String("news"), String("tech")), true},
		{"InMiss", In("category", String("news"), String("sports")), false},
		{"Nin", Nin("category", String("news")), true},
		{"NinMiss", Nin("category", String("tech")), false},
		{"And", And(Eq("category", String("tech")), Gt("year", Int(2020))), true},
		{"AndShortCircuit", And(Eq("category", String("news")), Gt("year", Int(2020))), false},
		{"Or", Or(Eq("category", String("news")), Gt("year", Int(2020))), true},
		{"OrAllMiss", Or(Eq("category", String("news")), Gt("year", Int(3000))), false},
		{"Nested", And(
			Or(Eq("category", String("news")), Eq("category", String("tech"))),
			Lte("price", Float(10)),
		), true},
		{"EmptyAnd", And(), true},
		{"EmptyOr", Or(), false},
		{"NilPredicate", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Matches(doc))
		})
	}
}

// Absent fields never satisfy the positive operators but do satisfy the
// negative ones. This asymmetry is contractual.
func TestPredicateAbsentField(t *testing.T) {
	doc := Document{"present": Int(1)}

	tests := []struct {
		name string
		pred *Predicate
		want bool
	}{
		{"EqAbsent", Eq("missing", Int(1)), false},
		{"GtAbsent", Gt("missing", Int(0)), false},
		{"GteAbsent", Gte("missing", Int(0)), false},
		{"LtAbsent", Lt("missing", Int(100)), false},
		{"LteAbsent", Lte("missing", Int(100)), false},
		{"InAbsent", In("missing", Int(1), Int(2)), false},
		{"NeAbsent", Ne("missing", Int(1)), true},
		{"NinAbsent", Nin("missing", Int(1), Int(2)), true},
		{"EqNullNotAbsent", Eq("missing", Null()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Matches(doc))
		})
	}
}

func TestPredicateNullSemantics(t *testing.T) {
	doc := Document{"field": Null()}

	assert.True(t, Eq("field", Null()).Matches(doc))
	assert.False(t, Eq("field", Int(0)).Matches(doc))
	assert.False(t, Gt("field", Int(0)).Matches(doc))
	assert.True(t, Ne("field", Int(0)).Matches(doc))
}

func TestPredicateArrayEquality(t *testing.T) {
	doc := Document{"tags": Array([]Value{String("a"), String("b")})}

	assert.True(t, Eq("tags", Array([]Value{String("a"), String("b")})).Matches(doc))
	assert.False(t, Eq("tags", Array([]Value{String("b"), String("a")})).Matches(doc))
	assert.False(t, Eq("tags", Array([]Value{String("a")})).Matches(doc))
}

func TestPredicateEmptyDocument(t *testing.T) {
	var doc Document

	assert.False(t, Eq("x", Int(1)).Matches(doc))
	assert.True(t, Ne("x", Int(1)).Matches(doc))
	assert.True(t, Nin("x", Int(1)).Matches(doc))
}
