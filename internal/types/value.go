// Package types holds the data model shared by the actiondeck engine:
// the closed value union, the document tree and run/step states.
package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the closed tagged union every expression, template, variable and
// argv rule operates on. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a Number.
func Int(i int) Value { return Value{kind: KindNumber, n: float64(i)} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence wraps an ordered list of values.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Mapping wraps an ordered map. A nil map becomes an empty mapping.
func Mapping(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMapping, m: m}
}

// Strings builds a sequence of string values.
func Strings(items ...string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return Sequence(out...)
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a Number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Items returns the elements of a Sequence, nil otherwise.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Map returns the map of a Mapping, nil otherwise.
func (v Value) Map() *Map {
	if v.kind != KindMapping {
		return nil
	}
	return v.m
}

// AsInt returns the number as an int when it is integral.
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	return int(v.n), true
}

// Truthy follows the usual scripting rules: null, false, 0, "", empty
// sequences and empty mappings are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindSequence:
		return len(v.seq) > 0
	case KindMapping:
		return v.m.Len() > 0
	}
	return false
}

// IsEmpty reports null, empty string or empty sequence.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindSequence:
		return len(v.seq) == 0
	}
	return false
}

// Len returns the size of a string (in runes), sequence or mapping.
func (v Value) Len() (int, error) {
	switch v.kind {
	case KindString:
		return len([]rune(v.s)), nil
	case KindSequence:
		return len(v.seq), nil
	case KindMapping:
		return v.m.Len(), nil
	}
	return 0, fmt.Errorf("object of type %s has no len()", v.kind)
}

// Equal is deep equality. Bool and Number never compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			ov, ok := o.m.Get(k)
			if !ok {
				return false
			}
			vv, _ := v.m.Get(k)
			if !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the canonical string form used when a value is spliced into
// text or becomes an argv token. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	}
	return v.repr()
}

// repr is the canonical form of a value nested inside a container.
func (v Value) repr() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return strconv.Quote(v.s)
	case KindSequence:
		parts := make([]string, len(v.seq))
		for i, item := range v.seq {
			parts[i] = item.repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMapping:
		parts := make([]string, 0, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			parts = append(parts, strconv.Quote(k)+": "+item.repr())
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// FormatNumber prints integral numbers without a fraction.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// FromGo converts decoded YAML/JSON data and plain Go values into a Value.
// Maps with non-string keys are rejected; map[string]any keys are sorted
// since Go maps carry no order.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case []string:
		return Strings(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromGo(item)
			if err != nil {
				return Null(), fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Sequence(items...), nil
	case *Map:
		return Mapping(t), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := FromGo(t[k])
			if err != nil {
				return Null(), fmt.Errorf("%s: %w", k, err)
			}
			m.Set(k, v)
		}
		return Mapping(m), nil
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, String(t[k]))
		}
		return Mapping(m), nil
	case map[any]any:
		conv := make(map[string]any, len(t))
		for k, item := range t {
			ks, ok := k.(string)
			if !ok {
				return Null(), fmt.Errorf("unsupported mapping key %v", k)
			}
			conv[ks] = item
		}
		return FromGo(conv)
	}
	return Null(), fmt.Errorf("unsupported value type %T", x)
}

// ToGo converts a Value back to plain Go data suitable for YAML encoding.
// Integral numbers become int.
func (v Value) ToGo() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if i, ok := v.AsInt(); ok {
			return i
		}
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToGo()
		}
		return out
	case KindMapping:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			out[k] = item.ToGo()
			return true
		})
		return out
	}
	return nil
}
