package canon

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type undefinedish struct{}

func (undefinedish) MarshalJSON() ([]byte, error) {
	return []byte(`{ "undefined" : true }`), nil
}

type point struct {
	Y int    `json:"y"`
	X int    `json:"x"`
	L string `json:"label,omitempty"`
}

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, "null"},
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"int8", int8(-3), "-3"},
		{"uint", uint32(7), "7"},
		{"max int64", int64(math.MaxInt64), "9223372036854775807"},
		{"bool", true, "true"},
		{"integral float", 3.0, "3"},
		{"float", 1.5, "1.5"},
		{"float32", float32(0.25), "0.25"},
		{"error", errors.New("bad thing"), `"bad thing"`},
		{"marshaler", undefinedish{}, `{"undefined":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshal_SortedKeys(t *testing.T) {
	got, err := Marshal(map[string]any{"zebra": 1, "alpha": 2, "beta": map[string]int{"b": 1, "a": 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"a":2,"b":1},"zebra":1}`, string(got))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates D83D DE00, which sort before U+FF61.
	got, err := Marshal(map[string]any{"｡": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"｡\":1}", string(got))
}

func TestMarshal_StringEscaping(t *testing.T) {
	got, err := Marshal("<a href=\"x\">&\\\n\x01 ")
	require.NoError(t, err)
	assert.Equal(t, "\"<a href=\\\"x\\\">&\\\\\\n\\u0001 \"", string(got))
}

func TestMarshal_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := Marshal(map[string]any{decomposed: decomposed})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":\"\u00e9\"}", string(got))
}

func TestMarshal_Collections(t *testing.T) {
	got, err := Marshal([]any{1, "two", []string{"a"}, [2]bool{true, false}, nil})
	require.NoError(t, err)
	assert.Equal(t, `[1,"two",["a"],[true,false],null]`, string(got))

	var nilSlice []int
	got, err = Marshal(nilSlice)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestMarshal_Struct(t *testing.T) {
	got, err := Marshal(&point{Y: 2, X: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, string(got))

	var nilPoint *point
	got, err = Marshal(nilPoint)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestMarshal_Errors(t *testing.T) {
	_, err := Marshal(math.NaN())
	assert.Error(t, err)

	_, err = Marshal(map[int]string{1: "a"})
	assert.Error(t, err)

	_, err = Marshal(map[string]any{"f": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `["f"]`)
}

func TestDigest(t *testing.T) {
	a, err := Digest("stately/state/v1", map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := Digest("stately/state/v1", map[string]any{"y": 2, "x": 1})
	require.NoError(t, err)
	c, err := Digest("stately/other/v1", map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "key order does not matter")
	assert.NotEqual(t, a, c, "domain separates digests")
}

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(math.Inf(1)) })
}
