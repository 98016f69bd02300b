package metadata

import (
	"encoding/json"
	"fmt"
)

// ParsePredicate converts a Mongo-style filter document into a Predicate.
//
// The grammar supports direct equality shorthand ({"category": "tech"}),
// operator objects ({"price": {"$gt": 10}}), and boolean composition
// ({"$and": [...]}, {"$or": [...]}). Multiple top-level keys combine with
// AND, as do multiple operators inside one operator object.
func ParsePredicate(where map[string]any) (*Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}

	preds := make([]*Predicate, 0, len(where))

	for key, raw := range where {
		switch key {
		case "$and", "$or":
			subs, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("metadata: %s expects an array, got %T", key, raw)
			}
			children := make([]*Predicate, 0, len(subs))
			for _, sub := range subs {
				m, ok := sub.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("metadata: %s elements must be objects, got %T", key, sub)
				}
				child, err := ParsePredicate(m)
				if err != nil {
					return nil, err
				}
				if child != nil {
					children = append(children, child)
				}
			}
			if key == "$and" {
				preds = append(preds, And(children...))
			} else {
				preds = append(preds, Or(children...))
			}
		default:
			p, err := parseFieldPredicate(key, raw)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return And(preds...), nil
}

// ParsePredicateJSON parses a JSON-encoded filter document.
func ParsePredicateJSON(data []byte) (*Predicate, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var where map[string]any
	if err := json.Unmarshal(data, &where); err != nil {
		return nil, fmt.Errorf("metadata: invalid filter JSON: %w", err)
	}

	return ParsePredicate(where)
}

func parseFieldPredicate(field string, raw any) (*Predicate, error) {
	// Direct equality shorthand: {"category": "tech"}.
	ops, ok := raw.(map[string]any)
	if !ok {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: field %q: %w", field, err)
		}
		return Eq(field, v), nil
	}

	preds := make([]*Predicate, 0, len(ops))

	for op, rawValue := range ops {
		v, err := FromAny(rawValue)
		if err != nil {
			return nil, fmt.Errorf("metadata: field %q operator %s: %w", field, op, err)
		}

		switch op {
		case "$eq":
			preds = append(preds, Eq(field, v))
		case "$ne":
			preds = append(preds, Ne(field, v))
		case "$gt":
			preds = append(preds, Gt(field, v))
		case "$gte":
			preds = append(preds, Gte(field, v))
		case "$lt":
			preds = append(preds, Lt(field, v))
		case "$lte":
			preds = append(preds, Lte(field, v))
		case "$in":
			if v.Kind != KindArray {
				return nil, fmt.Errorf("metadata: field %q: $in expects an array", field)
			}
			preds = append(preds, &Predicate{Op: OpIn, Field: field, Value: v})
		case "$nin":
			if v.Kind != KindArray {
				return nil, fmt.Errorf("metadata: field %q: $nin expects an array", field)
			}
			preds = append(preds, &Predicate{Op: OpNin, Field: field, Value: v})
		default:
			return nil, fmt.Errorf("metadata: field %q: unknown operator %q", field, op)
		}
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return And(preds...), nil
}
