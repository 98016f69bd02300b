package metadata

// Op identifies a predicate operator.
type Op uint8

const (
	// OpInvalid represents an invalid operator.
	OpInvalid Op = iota
	// OpEq matches documents whose field equals the value.
	OpEq
	// OpNe matches documents whose field differs from the value.
	OpNe
	// OpGt matches documents whose numeric field is greater than the value.
	OpGt
	// OpGte matches documents whose numeric field is greater than or equal to the value.
	OpGte
	// OpLt matches documents whose numeric field is less than the value.
	OpLt
	// OpLte matches documents whose numeric field is less than or equal to the value.
	OpLte
	// OpIn matches documents whose field equals one of the array elements.
	OpIn
	// OpNin matches documents whose field equals none of the array elements.
	OpNin
	// OpAnd matches documents satisfying every child predicate.
	OpAnd
	// OpOr matches documents satisfying at least one child predicate.
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "$eq"
	case OpNe:
		return "$ne"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	case OpIn:
		return "$in"
	case OpNin:
		return "$nin"
	case OpAnd:
		return "$and"
	case OpOr:
		return "$or"
	default:
		return "invalid"
	}
}

// Predicate is a closed filter variant evaluated recursively over documents.
//
// Comparison operators use Field and Value; OpAnd and OpOr compose Preds and
// ignore Field/Value. The zero Predicate matches nothing.
type Predicate struct {
	Op    Op
	Field string
	Value Value
	Preds []*Predicate
}

// Eq matches documents where field equals value.
func Eq(field string, value Value) *Predicate {
	return &Predicate{Op: OpEq, Field: field, Value: value}
}

// Ne matches documents where field differs from value. A document without the
// field matches.
func Ne(field string, value Value) *Predicate {
	return &Predicate{Op: OpNe, Field: field, Value: value}
}

// Gt matches documents where the numeric field is greater than value.
func Gt(field string, value Value) *Predicate {
	return &Predicate{Op: OpGt, Field: field, Value: value}
}

// Gte matches documents where the numeric field is greater than or equal to value.
func Gte(field string, value Value) *Predicate {
	return &Predicate{Op: OpGte, Field: field, Value: value}
}

// Lt matches documents where the numeric field is less than value.
func Lt(field string, value Value) *Predicate {
	return &Predicate{Op: OpLt, Field: field, Value: value}
}

// Lte matches documents where the numeric field is less than or equal to value.
func Lte(field string, value Value) *Predicate {
	return &Predicate{Op: OpLte, Field: field, Value: value}
}

// In matches documents where field equals one of values.
func In(field string, values ...Value) *Predicate {
	return &Predicate{Op: OpIn, Field: field, Value: Array(values)}
}

// Nin matches documents where field equals none of values. A document without
// the field matches.
func Nin(field string, values ...Value) *Predicate {
	return &Predicate{Op: OpNin, Field: field, Value: Array(values)}
}

// And matches documents satisfying every child predicate.
func And(preds ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, Preds: preds}
}

// Or matches documents satisfying at least one child predicate.
func Or(preds ...*Predicate) *Predicate {
	return &Predicate{Op: OpOr, Preds: preds}
}

// Matches evaluates the predicate against a document. It is pure and total.
//
// A document lacking the named field never matches OpEq, OpGt, OpGte, OpLt,
// OpLte, or OpIn, but does match OpNe and OpNin: the negative forms hold
// vacuously when the field is absent. This asymmetry is part of the contract.
func (p *Predicate) Matches(doc Document) bool {
	if p == nil {
		return true
	}

	switch p.Op {
	case OpAnd:
		for _, sub := range p.Preds {
			if !sub.Matches(doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, sub := range p.Preds {
			if sub.Matches(doc) {
				return true
			}
		}
		return false
	}

	value, exists := doc[p.Field]

	switch p.Op {
	case OpEq:
		return exists && compareEqual(value, p.Value)
	case OpNe:
		return !exists || !compareEqual(value, p.Value)
	case OpGt:
		return exists && compareGreater(value, p.Value)
	case OpGte:
		return exists && (compareGreater(value, p.Value) || compareEqual(value, p.Value))
	case OpLt:
		return exists && compareLess(value, p.Value)
	case OpLte:
		return exists && (compareLess(value, p.Value) || compareEqual(value, p.Value))
	case OpIn:
		return exists && compareIn(value, p.Value)
	case OpNin:
		return !exists || !compareIn(value, p.Value)
	default:
		return false
	}
}

// compareEqual compares two values for equality. Numbers compare across
// int/float kinds; other kinds must match exactly.
func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
