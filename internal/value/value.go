// internal/value/value.go
//
// Exact configuration values.
//
// Context
// -------
// Every configuration layer is a flat map of key → Value.  A Value is one
// of string, number, boolean, or null.  Numbers are stored as their literal
// text, never as float64, so `0.123456789012345678` written by a user is
// read back byte-for-byte.  Strings are opaque; a value such as
// `mongodb://host:27017/db` is never parsed or rewritten.
//
// The JSON and YAML codecs in this package are the only place where values
// cross a text boundary.  Both keep the literal form intact.
//
// Notes
// -----
//   - The zero Value is null.
//   - Nested objects and arrays are rejected; layers are flat.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Kind enumerates the scalar shapes a Value can take.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	default:
		return "null"
	}
}

// ErrNotScalar is returned when decoding an object or array into a Value.
var ErrNotScalar = errors.New("value: not a scalar")

// ErrBadNumber is returned when a number literal is not a valid JSON number.
var ErrBadNumber = errors.New("value: invalid number literal")

// jsonNumber matches the JSON number grammar (RFC 8259 §6).
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Value is an immutable configuration scalar.
type Value struct {
	kind Kind
	raw  string
}

// Map is one flat layer of configuration.
type Map map[string]Value

// Str wraps s as a string value.
func Str(s string) Value { return Value{kind: String, raw: s} }

// Boolean wraps b as a boolean value.
func Boolean(b bool) Value {
	if b {
		return Value{kind: Bool, raw: "true"}
	}
	return Value{kind: Bool, raw: "false"}
}

// NullValue returns the null value.
func NullValue() Value { return Value{} }

// Num wraps a number literal.  The literal is kept verbatim.
func Num(literal string) (Value, error) {
	if !IsNumberLiteral(literal) {
		return Value{}, fmt.Errorf("%w: %q", ErrBadNumber, literal)
	}
	return Value{kind: Number, raw: literal}, nil
}

// MustNum is Num for literals known at compile time.
func MustNum(literal string) Value {
	v, err := Num(literal)
	if err != nil {
		panic(err)
	}
	return v
}

// IsNumberLiteral reports whether s follows the JSON number grammar.
func IsNumberLiteral(s string) bool { return jsonNumber.MatchString(s) }

// Kind returns the value's shape.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// Raw returns the literal text: the string itself, the number literal,
// "true"/"false", or "" for null.
func (v Value) Raw() string { return v.raw }

// String renders v for environment variables.  Identical to Raw.
func (v Value) String() string { return v.raw }

// Equal reports byte-exact equality of kind and literal.
func (v Value) Equal(o Value) bool { return v.kind == o.kind && v.raw == o.raw }

// Parse interprets s the way a shell user means it: a JSON scalar when it
// parses as one (number, true, false, null, or a quoted string), otherwise
// the plain string s.
func Parse(s string) Value {
	var v Value
	if err := v.UnmarshalJSON([]byte(s)); err == nil {
		return v
	}
	return Str(s)
}

/*──────────────────────────────── JSON ────────────────────────────────────*/

// MarshalJSON emits numbers as their original literal.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool, Number:
		return []byte(v.raw), nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v.raw); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
}

// UnmarshalJSON accepts exactly one JSON scalar.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrNotScalar)
	}
	switch data[0] {
	case '{', '[':
		return fmt.Errorf("%w: got %s", ErrNotScalar, string(data[:1]))
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Str(s)
		return nil
	}
	switch string(data) {
	case "null":
		*v = NullValue()
		return nil
	case "true":
		*v = Boolean(true)
		return nil
	case "false":
		*v = Boolean(false)
		return nil
	}
	n, err := Num(string(data))
	if err != nil {
		return err
	}
	*v = n
	return nil
}

/*──────────────────────────────── helpers ─────────────────────────────────*/

// Clone returns a shallow copy of m.  Values are immutable so a shallow copy
// is a full copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the map's keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports exact equality of two maps.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
