package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Comparison operators accepted in leaf conditions.
const (
	OpEq  = "=="
	OpNe  = "!="
	OpGt  = ">"
	OpLt  = "<"
	OpGte = ">="
	OpLte = "<="
)

// Condition is a recursive predicate evaluated against an attribute context.
// It is one of Leaf, And or Or; anything else fails closed.
type Condition interface {
	// Evaluate reports whether the condition holds for the given context.
	// It is pure and never panics for decoded input.
	Evaluate(ctx map[string]any) bool
	// Validate rejects malformed conditions at policy-creation time.
	Validate() error
}

// Leaf compares a single context field against a literal value or, when
// ValueFrom is set, against another context field.
type Leaf struct {
	Field     string
	Op        string
	Value     any
	ValueFrom string
}

// And is true iff all children are true. An empty child list is vacuously true.
type And struct {
	Children []Condition
}

// Or is true iff any child is true. An empty child list is false.
type Or struct {
	Children []Condition
}

// unknown preserves an unrecognized condition shape. It always evaluates to
// false and never validates.
type unknown struct {
	raw json.RawMessage
}

// Evaluate resolves the field and comparison values and applies the operator.
// Missing fields resolve to nil; type-mismatched ordering comparisons are false.
func (l Leaf) Evaluate(ctx map[string]any) bool {
	fieldValue := ctx[l.Field]
	compareValue := l.Value
	if l.ValueFrom != "" {
		compareValue = ctx[l.ValueFrom]
	}

	switch l.Op {
	case OpEq:
		return looseEqual(fieldValue, compareValue)
	case OpNe:
		return !looseEqual(fieldValue, compareValue)
	case OpGt:
		cmp, ok := compare(fieldValue, compareValue)
		return ok && cmp > 0
	case OpLt:
		cmp, ok := compare(fieldValue, compareValue)
		return ok && cmp < 0
	case OpGte:
		cmp, ok := compare(fieldValue, compareValue)
		return ok && cmp >= 0
	case OpLte:
		cmp, ok := compare(fieldValue, compareValue)
		return ok && cmp <= 0
	}
	return false
}

// Validate checks the leaf shape: field and a known operator are required.
func (l Leaf) Validate() error {
	if l.Field == "" {
		return fmt.Errorf("condition: leaf requires a field")
	}
	switch l.Op {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte:
		return nil
	}
	return fmt.Errorf("condition: unknown operator %q", l.Op)
}

func (a And) Evaluate(ctx map[string]any) bool {
	for _, child := range a.Children {
		if !child.Evaluate(ctx) {
			return false
		}
	}
	return true
}

func (a And) Validate() error {
	for _, child := range a.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o Or) Evaluate(ctx map[string]any) bool {
	for _, child := range o.Children {
		if child.Evaluate(ctx) {
			return true
		}
	}
	return false
}

func (o Or) Validate() error {
	for _, child := range o.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (u unknown) Evaluate(map[string]any) bool {
	return false
}

func (u unknown) Validate() error {
	return fmt.Errorf("condition: unrecognized shape %s", compactRaw(u.raw))
}

// DecodeCondition parses a JSON condition tree into its typed form. Shapes
// that match none of leaf/and/or decode to a node that evaluates to false,
// so stored malformed conditions can never grant access.
func DecodeCondition(data []byte) Condition {
	var shape struct {
		Field     string            `json:"field"`
		Op        string            `json:"op"`
		Value     json.RawMessage   `json:"value"`
		ValueFrom string            `json:"valueFrom"`
		And       []json.RawMessage `json:"and"`
		Or        []json.RawMessage `json:"or"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return unknown{raw: append(json.RawMessage(nil), data...)}
	}

	if shape.Field != "" && shape.Op != "" {
		leaf := Leaf{Field: shape.Field, Op: shape.Op, ValueFrom: shape.ValueFrom}
		if len(shape.Value) > 0 {
			_ = json.Unmarshal(shape.Value, &leaf.Value)
		}
		return leaf
	}
	if shape.And != nil {
		return And{Children: decodeChildren(shape.And)}
	}
	if shape.Or != nil {
		return Or{Children: decodeChildren(shape.Or)}
	}
	return unknown{raw: append(json.RawMessage(nil), data...)}
}

func decodeChildren(raw []json.RawMessage) []Condition {
	children := make([]Condition, 0, len(raw))
	for _, r := range raw {
		children = append(children, DecodeCondition(r))
	}
	return children
}

// MarshalJSON round-trips the leaf into its wire shape.
func (l Leaf) MarshalJSON() ([]byte, error) {
	out := map[string]any{"field": l.Field, "op": l.Op}
	if l.ValueFrom != "" {
		out["valueFrom"] = l.ValueFrom
	} else {
		out["value"] = l.Value
	}
	return json.Marshal(out)
}

func (a And) MarshalJSON() ([]byte, error) {
	children := a.Children
	if children == nil {
		children = []Condition{}
	}
	return json.Marshal(map[string]any{"and": children})
}

func (o Or) MarshalJSON() ([]byte, error) {
	children := o.Children
	if children == nil {
		children = []Condition{}
	}
	return json.Marshal(map[string]any{"or": children})
}

func (u unknown) MarshalJSON() ([]byte, error) {
	if len(u.raw) == 0 {
		return []byte("{}"), nil
	}
	return u.raw, nil
}

// looseEqual compares two context values. Numeric values compare by value
// regardless of the concrete numeric type; everything else uses deep equality.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, fok := toFloat(b)
		return fok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values when both are numeric or both are strings.
// Mixed or unordered types report !ok, which the caller treats as false.
func compare(a, b any) (int, bool) {
	if fa, aok := toFloat(a); aok {
		fb, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func compactRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	if len(raw) > 120 {
		return string(raw[:120]) + "..."
	}
	return string(raw)
}
