package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func TestUnmarshalJSON_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
		raw  string
	}{
		{"HighPrecisionDecimal", `0.123456789`, Number, "0.123456789"},
		{"LongDecimalKeepsDigits", `3.14159265358979323846264338327950288`, Number, "3.14159265358979323846264338327950288"},
		{"ExponentKeptVerbatim", `1.50E+10`, Number, "1.50E+10"},
		{"TrailingZerosKept", `2.500`, Number, "2.500"},
		{"BigInteger", `123456789012345678901234567890`, Number, "123456789012345678901234567890"},
		{"URLString", `"mongodb://user-override-test:27017/testdb"`, String, "mongodb://user-override-test:27017/testdb"},
		{"NumericLookingString", `"0.1"`, String, "0.1"},
		{"True", `true`, Bool, "true"},
		{"False", `false`, Bool, "false"},
		{"Null", `null`, Null, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.raw, v.Raw())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tt.in, string(out), "JSON round trip must be byte-exact")
		})
	}
}

func TestUnmarshalJSON_RejectsNested(t *testing.T) {
	var v Value
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a":1}`), &v), ErrNotScalar)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1,2]`), &v), ErrNotScalar)
}

func TestNum_RejectsNonJSONLiterals(t *testing.T) {
	for _, in := range []string{"01", "1.", ".5", "0x1F", "NaN", "+1", ""} {
		_, err := Num(in)
		assert.ErrorIs(t, err, ErrBadNumber, "literal %q", in)
	}
}

func TestMarshalJSON_DoesNotEscapeURLs(t *testing.T) {
	out, err := json.Marshal(Map{"U": Str("http://a/b?x=1&y=<2>")})
	require.NoError(t, err)
	assert.Equal(t, `{"U":"http://a/b?x=1&y=<2>"}`, string(out))
}

func TestParse_ShellInput(t *testing.T) {
	assert.Equal(t, Number, Parse("0.5").Kind())
	assert.Equal(t, Bool, Parse("true").Kind())
	assert.Equal(t, Null, Parse("null").Kind())
	assert.Equal(t, Str("gpt-4o"), Parse("gpt-4o"))
	assert.Equal(t, Str("redis://cache:6379"), Parse("redis://cache:6379"))
	assert.Equal(t, Str("42"), Parse(`"42"`))
}

func TestYAML_RoundTripKeepsKinds(t *testing.T) {
	in := Map{
		"temperature": MustNum("0.123456789"),
		"huge":        MustNum("12345678901234567890123"),
		"tiny":        MustNum("1e-400"),
		"port_string": Str("8080"),
		"flag_string": Str("true"),
		"null_string": Str("null"),
		"url":         Str("redis://cache:6379/0"),
		"enabled":     Boolean(true),
		"unset":       NullValue(),
		"multi":       Str("line one\nline two\n"),
	}
	data, err := yaml.Marshal(MapNode(in))
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(data, &doc))
	out, err := MapFromNode(doc.Content[0])
	require.NoError(t, err)

	assert.True(t, in.Equal(out), "yaml:\n%s\ngot %#v", data, out)
}

func TestFromNode_YAMLOnlyNumbersBecomeStrings(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("a: 0x1F\nb: 1_000\nc: .inf\n"), &doc))
	m, err := MapFromNode(doc.Content[0])
	require.NoError(t, err)
	assert.Equal(t, Str("0x1F"), m["a"])
	assert.Equal(t, Str("1_000"), m["b"])
	assert.Equal(t, Str(".inf"), m["c"])
}

func TestMapFromNode_RejectsNestedValues(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("a:\n  b: 1\n"), &doc))
	_, err := MapFromNode(doc.Content[0])
	assert.ErrorIs(t, err, ErrNotScalar)
}

// Property-based tests using rapid

func decimalLiteral() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		intPart := rapid.StringMatching(`-?(0|[1-9][0-9]{0,12})`).Draw(t, "int")
		frac := rapid.StringMatching(`[0-9]{9,30}`).Draw(t, "frac")
		return intPart + "." + frac
	})
}

func TestExactness_PropertyBased_NumbersSurviveJSONAndYAML(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lit := decimalLiteral().Draw(t, "literal")
		v := MustNum(lit)

		js, err := json.Marshal(Map{"k": v})
		require.NoError(t, err)
		var fromJSON Map
		require.NoError(t, json.Unmarshal(js, &fromJSON))
		assert.Equal(t, lit, fromJSON["k"].Raw())

		ys, err := yaml.Marshal(MapNode(Map{"k": v}))
		require.NoError(t, err)
		var doc yaml.Node
		require.NoError(t, yaml.Unmarshal(ys, &doc))
		fromYAML, err := MapFromNode(doc.Content[0])
		require.NoError(t, err)
		assert.True(t, v.Equal(fromYAML["k"]), "yaml %q", ys)

		f, err := strconv.ParseFloat(fromYAML["k"].Raw(), 64)
		require.NoError(t, err)
		want, _ := strconv.ParseFloat(lit, 64)
		assert.InDelta(t, want, f, 1e-9)
	})
}

func TestExactness_PropertyBased_StringsSurviveYAML(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scheme := rapid.SampledFrom([]string{"http", "mongodb", "redis", "postgres", "bolt"}).Draw(t, "scheme")
		host := rapid.StringMatching(`[a-z][a-z0-9-]{0,20}(\.[a-z]{2,5}){0,2}`).Draw(t, "host")
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		tail := rapid.StringMatching(`[ -~]{0,40}`).Draw(t, "tail")
		s := fmt.Sprintf("%s://%s:%d/%s", scheme, host, port, tail)

		ys, err := yaml.Marshal(MapNode(Map{"URL": Str(s)}))
		require.NoError(t, err)
		var doc yaml.Node
		require.NoError(t, yaml.Unmarshal(ys, &doc))
		m, err := MapFromNode(doc.Content[0])
		require.NoError(t, err)
		assert.Equal(t, Str(s), m["URL"])
	})
}
