// Package kemper emulates the device side of the Kemper bidirectional MIDI
// protocol: parameter matching and encoding, and the connection state machine.
package kemper

import "strconv"

// ValueType is the fixed type tag of a parameter value
type ValueType int

const (
	Numeric ValueType = iota
	Text
)

func (t ValueType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Value is a parameter value carrying its own type tag.
// The zero Value is numeric 0.
type Value struct {
	typ  ValueType
	num  int
	text string
}

// NumericValue returns a numeric value
func NumericValue(n int) Value {
	return Value{typ: Numeric, num: n}
}

// TextValue returns a textual value
func TextValue(s string) Value {
	return Value{typ: Text, text: s}
}

// Type returns the value's tag
func (v Value) Type() ValueType {
	return v.typ
}

// Int returns the numeric content (0 for text values)
func (v Value) Int() int {
	return v.num
}

// Text returns the textual content ("" for numeric values)
func (v Value) Text() string {
	return v.text
}

// Equal reports whether both values have the same tag and content
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	if v.typ == Text {
		return v.text
	}
	return strconv.Itoa(v.num)
}

// Any returns the value as int or string, for JSON encoding
func (v Value) Any() any {
	if v.typ == Text {
		return v.text
	}
	return v.num
}
