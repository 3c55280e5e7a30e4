package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysUTF16(t *testing.T) {
	obj := Object{
		"zeta":  Int(1),
		"alpha": Int(2),
		"mid":   Int(3),
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	obj := Object{"desc": String("a < b && c > d")}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"desc":"a < b && c > d"}`, string(data))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "é" as precomposed U+00E9 vs decomposed e + U+0301 must serialize
	// identically.
	precomposed := Object{"name": String("café")}
	decomposed := Object{"name": String("café")}

	d1, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	d2, err := MarshalCanonical(decomposed)
	require.NoError(t, err)

	assert.Equal(t, string(d1), string(d2))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	// Go's encoder escapes U+2028/U+2029; the canonical form keeps them
	// literal per RFC 8785.
	obj := Object{"s": String("a b c")}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"s\":\"a b c\"}", string(data))
}

func TestMarshalCanonical_EscapedBackslashBeforeU202x(t *testing.T) {
	// A literal backslash followed by the text "u2028" must stay escaped
	// and must not be collapsed into the line separator character.
	obj := Object{"s": String(`\u2028`)}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"\\u2028"}`, string(data))
}

func TestMarshalCanonical_RejectsNull(t *testing.T) {
	obj := Object{"x": Null{}}

	_, err := MarshalCanonical(obj)
	assert.Error(t, err, "null must be stripped by Normalize before hashing")
}

func TestMarshalCanonical_NestedStructures(t *testing.T) {
	obj := Object{
		"meta": Object{
			"b": Bool(true),
			"a": Array{Int(1), String("two")},
		},
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"meta":{"a":[1,"two"],"b":true}}`, string(data))
}

func TestNormalize_StripsNulls(t *testing.T) {
	obj := Object{
		"keep":   String("x"),
		"drop":   Null{},
		"nested": Object{"inner_drop": Null{}, "inner_keep": Int(1)},
	}

	norm := obj.Normalize()

	_, hasDrop := norm["drop"]
	assert.False(t, hasDrop)
	nested := norm["nested"].(Object)
	_, hasInner := nested["inner_drop"]
	assert.False(t, hasInner)
	assert.Equal(t, Int(1), nested["inner_keep"])
	assert.Equal(t, String("x"), norm["keep"])
}

func TestNormalize_StripsNullsInsideArrays(t *testing.T) {
	obj := Object{
		"steps": Array{
			Object{"x": Null{}, "y": Int(1)},
			Null{},
			Array{Null{}, String("deep")},
		},
	}

	norm := obj.Normalize()

	steps := norm["steps"].(Array)
	assert.Len(t, steps, 2, "bare null elements are dropped")
	first := steps[0].(Object)
	_, hasX := first["x"]
	assert.False(t, hasX)
	assert.Equal(t, Int(1), first["y"])
	assert.Equal(t, Array{String("deep")}, steps[1])

	// The normalized form marshals; a null anywhere would be rejected.
	_, err := MarshalCanonical(norm)
	assert.NoError(t, err)

	// The input was deep-copied, not mutated.
	orig := obj["steps"].(Array)[0].(Object)
	assert.Equal(t, Null{}, orig["x"])
}

func TestParseSnapshot_RejectsFloats(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"score": 0.95}`))
	assert.Error(t, err)
}

func TestParseSnapshot_LargeIntegers(t *testing.T) {
	// Values above 2^53 must not lose precision through float64.
	snap, err := ParseSnapshot([]byte(`{"big": 9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), snap["big"])
}

func TestParseSnapshot_NullBecomesAbsent(t *testing.T) {
	snap, err := ParseSnapshot([]byte(`{"a": null, "b": "x"}`))
	require.NoError(t, err)

	_, hasA := snap["a"]
	assert.False(t, hasA, "null attribute should normalize to absent")
	assert.Equal(t, String("x"), snap["b"])
}
