package attr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the attribute value types that may appear
// in a versioned snapshot. Only Null, String, Int, Bool, Array, and Object
// implement it. There is no float type - floats break digest determinism and
// are rejected at every boundary.
type Value interface {
	attrValue() // Sealed - only these types implement it
}

// Null represents an explicit unknown. It is accepted on input (and produced
// when decoding historical rows written before an attribute existed) but is
// never part of the canonical form: a null-valued key is the same snapshot as
// an absent key.
type Null struct{}

func (Null) attrValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text attribute value.
type String string

func (String) attrValue() {}

// Int represents an integer attribute value. Always int64, never float64.
type Int int64

func (Int) attrValue() {}

// Bool represents a boolean attribute value.
type Bool bool

func (Bool) attrValue() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) attrValue() {}

// Object represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) attrValue() {}

// Snapshot is the versioned attribute set of an entity at one transaction.
// Keys are attribute names declared by the entity type descriptor.
type Snapshot = Object

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for characters
// outside the BMP, so a dedicated comparison is required.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering as
// required by RFC 8785. utf16.Encode handles surrogate pairs correctly.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}

	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// Normalize returns a deep copy of the snapshot with null values removed at
// every depth, including objects nested inside arrays. Absent and null are
// the same logical state, so normalizing before hashing or storing
// guarantees that the two spellings produce identical digests. A bare null
// array element is dropped the same way.
func (obj Object) Normalize() Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		if _, isNull := v.(Null); isNull {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Normalize()
	case Array:
		out := make(Array, 0, len(val))
		for _, elem := range val {
			if _, isNull := elem.(Null); isNull {
				continue
			}
			out = append(out, normalizeValue(elem))
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case Array:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return v
	}
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalValue decodes a JSON value into the matching Value type.
// Numbers are decoded through json.Number so that integers larger than 2^53
// survive the round trip; fractional or exponent forms are rejected.
func unmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return nil, fmt.Errorf("invalid JSON literal %q", data)
		}
		return Null{}, nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return nil, err
		}
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %q: floats are forbidden in versioned attributes", num)
		}
		return Int(n), nil
	}
}

// ParseSnapshot decodes a JSON object into a normalized Snapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj.Normalize(), nil
}
