package metadata

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNull
	KindInt
	KindFloat
	KindString
	KindBool
	KindArray
)

// Value is a tagged union over the scalar and array types a metadata field
// can hold. The zero Value is invalid; construct values through Null, Int,
// Float, String, Bool and Array.
//
// Value is part of the persisted document table; field tags must stay
// stable across versions.
type Value struct {
	Kind Kind    `json:"k"`
	I64  int64   `json:"i,omitempty"`
	F64  float64 `json:"f,omitempty"`
	S    string  `json:"s,omitempty"`
	B    bool    `json:"b,omitempty"`
	A    []Value `json:"a,omitempty"`
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an integer Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a floating-point Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value. The slice is not copied.
func Array(v []Value) Value { return Value{Kind: KindArray, A: v} }

// AsInt64 returns the integer payload when the value is an integer.
func (v Value) AsInt64() (int64, bool) {
	return v.I64, v.Kind == KindInt
}

// AsFloat64 returns the floating-point payload when the value is a float.
func (v Value) AsFloat64() (float64, bool) {
	return v.F64, v.Kind == KindFloat
}

// AsString returns the string payload when the value is a string.
func (v Value) AsString() (string, bool) {
	return v.S, v.Kind == KindString
}

// AsBool returns the boolean payload when the value is a boolean.
func (v Value) AsBool() (bool, bool) {
	return v.B, v.Kind == KindBool
}

// AsArray returns the element slice when the value is an array.
func (v Value) AsArray() ([]Value, bool) {
	return v.A, v.Kind == KindArray
}

// StringValue returns the string payload, or "" for any other kind.
func (v Value) StringValue() string { return v.S }

// Key renders a value as a stable string for use as an inverted-index map
// key. Renderings of distinct values never collide: every rendering is
// prefixed with its kind, and floats use their exact bit pattern so 1 (int)
// and 1.0 (float) index separately.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.S
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

// clone deep-copies a value. Only arrays carry shared state; every other
// kind copies by value.
func (v Value) clone() Value {
	if v.Kind != KindArray || len(v.A) == 0 {
		return v
	}
	elems := make([]Value, len(v.A))
	for i := range v.A {
		elems[i] = v.A[i].clone()
	}
	v.A = elems
	return v
}

// Document maps field names to typed values.
type Document map[string]Value

// Clone deep-copies the document, arrays included, so the copy is
// independent of the original.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v.clone()
	}
	return out
}

// CloneIfNeeded clones a document, mapping empty and nil input to nil to
// avoid the allocation for the common no-metadata case.
func CloneIfNeeded(d Document) Document {
	if len(d) == 0 {
		return nil
	}
	return d.Clone()
}
