// Package document implements the tagged binary serialization of
// JSON-shaped documents, together with helpers to extract identifiers and
// resolve dotted property paths.
//
// Every serialized value is a 1-byte type tag followed by its body:
//
//	tag 0  null    (empty body)
//	tag 1  bool    (1 byte, 0x00/0x01)
//	tag 2  int64   (8 bytes big-endian)
//	tag 3  float64 (8 bytes IEEE-754 big-endian)
//	tag 4  text    (u64 big-endian length prefix, UTF-8 bytes)
//	tag 5  array   (u64 big-endian count, then tagged items)
//	tag 6  object  (u64 big-endian count, then (string, tagged value) pairs)
//
// Object property order survives a round-trip: the in-memory tree keeps
// properties in an ordered slice rather than a map.
package document

import "strconv"

// Kind identifies the type of a Value. Its numeric value is the wire tag.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat
	KindText
	KindArray
	KindObject
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Property is one named member of an object value. Order matters.
type Property struct {
	Name  string
	Value Value
}

// Value is one node of a JSON-shaped document tree.
type Value struct {
	kind  Kind
	b     bool
	n     int64
	f     float64
	s     string
	items []Value
	props []Property
}

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

// Int returns an int64 value.
func Int(v int64) Value {
	return Value{kind: KindInt64, n: v}
}

// Float returns a float64 value.
func Float(v float64) Value {
	return Value{kind: KindFloat, f: v}
}

// Text returns a string value.
func Text(v string) Value {
	return Value{kind: KindText, s: v}
}

// Array returns an array value holding the given items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: items}
}

// Object returns an object value holding the given properties in order.
func Object(props ...Property) Value {
	return Value{kind: KindObject, props: props}
}

// Prop is a convenience constructor for an object property.
func Prop(name string, value Value) Property {
	return Property{Name: name, Value: value}
}

// Kind returns the type of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// Bool returns the boolean payload. Only meaningful for KindBool.
func (v Value) Bool() bool {
	return v.b
}

// Int64 returns the integer payload. Only meaningful for KindInt64.
func (v Value) Int64() int64 {
	return v.n
}

// Float64 returns the float payload. Only meaningful for KindFloat.
func (v Value) Float64() float64 {
	return v.f
}

// Text returns the string payload. Only meaningful for KindText.
func (v Value) Text() string {
	return v.s
}

// Items returns the array items. Only meaningful for KindArray.
func (v Value) Items() []Value {
	return v.items
}

// Properties returns the object properties in declaration order.
// Only meaningful for KindObject.
func (v Value) Properties() []Property {
	return v.props
}

// Property looks up an object member by name. It reports false when the
// value is not an object or has no member with that name.
func (v Value) Property(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, p := range v.props {
		if p.Name == name {
			return p.Value, true
		}
	}

	return Value{}, false
}

// Textual renders a scalar value as text: strings as-is, integers and
// floats in canonical decimal form, bools as "true"/"false". It reports
// false for null, arrays and objects.
func (v Value) Textual() (string, bool) {
	switch v.kind {
	case KindText:
		return v.s, true
	case KindInt64:
		return strconv.FormatInt(v.n, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// Equal reports deep equality, including object property order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt64:
		return v.n == other.n
	case KindFloat:
		return v.f == other.f
	case KindText:
		return v.s == other.s
	case KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}

		return true
	case KindObject:
		if len(v.props) != len(other.props) {
			return false
		}
		for i := range v.props {
			if v.props[i].Name != other.props[i].Name {
				return false
			}
			if !v.props[i].Value.Equal(other.props[i].Value) {
				return false
			}
		}

		return true
	default:
		return false
	}
}
