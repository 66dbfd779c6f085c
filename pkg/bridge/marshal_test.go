package bridge

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNativeBag_NilBundle(t *testing.T) {
	bag, err := ToNativeBag(nil)
	require.NoError(t, err)
	assert.Nil(t, bag)
}

func TestToNativeBag_RoundTrip(t *testing.T) {
	bundle := map[string]any{
		"s":   "purchase",
		"i32": int32(7),
		"i64": int64(math.MaxInt64),
		"f":   9.5,
		"b":   true,
		"nested": map[string]any{
			"currency": "USD",
			"value":    int32(9),
		},
	}

	bag, err := ToNativeBag(bundle)
	require.NoError(t, err)
	assert.Equal(t, KindString, bag["s"].Kind())
	assert.Equal(t, KindInt32, bag["i32"].Kind())
	assert.Equal(t, KindInt64, bag["i64"].Kind())
	assert.Equal(t, KindDouble, bag["f"].Kind())
	assert.Equal(t, KindBool, bag["b"].Kind())
	assert.Equal(t, KindMap, bag["nested"].Kind())
	assert.Equal(t, bundle, bag.Native())
}

func TestToNativeBag_GoIntWidth(t *testing.T) {
	bag, err := ToNativeBag(map[string]any{
		"small": 42,
		"large": math.MaxInt32 + 1,
	})
	require.NoError(t, err)
	assert.Equal(t, KindInt32, bag["small"].Kind())
	assert.Equal(t, KindInt64, bag["large"].Kind())
}

func TestToNativeBag_JSONNumbers(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"method":"m","arguments":{"a":9,"b":4294967296,"c":1.25,"d":-3}}`))
	require.NoError(t, err)

	bag, err := ToNativeBag(req.Arguments)
	require.NoError(t, err)

	a, ok := bag["a"].AsInt32()
	require.True(t, ok)
	assert.Equal(t, int32(9), a)

	b, ok := bag["b"].AsInt64()
	require.True(t, ok)
	assert.Equal(t, KindInt64, bag["b"].Kind())
	assert.Equal(t, int64(4294967296), b)

	c, ok := bag["c"].AsDouble()
	require.True(t, ok)
	assert.Equal(t, 1.25, c)

	d, ok := bag["d"].AsInt32()
	require.True(t, ok)
	assert.Equal(t, int32(-3), d)
}

func TestToNativeBag_UnsupportedKinds(t *testing.T) {
	tests := []struct {
		name     string
		bundle   map[string]any
		wantKey  string
		wantKind string
	}{
		{"array", map[string]any{"bad": []any{1, 2, 3}}, "bad", "array"},
		{"null leaf", map[string]any{"id": nil}, "id", "null"},
		{"struct", map[string]any{"x": struct{}{}}, "x", "struct {}"},
		{"uint", map[string]any{"u": uint8(1)}, "u", "uint8"},
		{"foreign map", map[string]any{"m": map[int]string{1: "a"}}, "m", "object"},
		{
			"nested array",
			map[string]any{"name": "x", "parameters": map[string]any{"bad": []any{1, 2, 3}}},
			"parameters.bad",
			"array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag, err := ToNativeBag(tt.bundle)
			require.Error(t, err)
			assert.Nil(t, bag, "no partial bag on failure")

			var me *MarshalError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.wantKey, me.Key)
			assert.Equal(t, tt.wantKind, me.Kind)
			assert.Contains(t, me.Error(), tt.wantKey)
		})
	}
}

func TestBag_Accessors(t *testing.T) {
	bag, err := ToNativeBag(map[string]any{
		"name":    "screen",
		"enabled": false,
		"ms32":    int32(1800),
		"ms64":    int64(1 << 40),
		"ratio":   0.5,
		"props":   map[string]any{"tier": "gold"},
	})
	require.NoError(t, err)

	s, err := bag.String("name")
	require.NoError(t, err)
	assert.Equal(t, "screen", s)

	b, err := bag.Bool("enabled")
	require.NoError(t, err)
	assert.False(t, b)

	widened, err := bag.Int64("ms32")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), widened)

	_, err = bag.Int32("ms64")
	require.Error(t, err, "int64 is never narrowed")

	f, err := bag.Double("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	_, err = bag.Int64("ratio")
	require.Error(t, err, "double is not coerced to an integer")

	m, err := bag.Map("props")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tier": "gold"}, m.Native())

	missing, err := bag.OptionalString("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	om, err := bag.OptionalMap("absent")
	require.NoError(t, err)
	assert.Nil(t, om)

	_, err = bag.String("absent")
	var me *MarshalError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "missing", me.Kind)

	_, err = bag.String("enabled")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "enabled", me.Key)
	assert.Equal(t, "bool", me.Kind)
}

func TestBag_NilAccessors(t *testing.T) {
	var bag Bag
	_, err := bag.String("name")
	require.Error(t, err)
	s, err := bag.OptionalString("id")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Empty(t, bag.Keys())
}

func TestValue_MarshalJSON(t *testing.T) {
	bag := Bag{
		"n": Int32Value(9),
		"c": StringValue("USD"),
		"m": MapValue(Bag{"ok": BoolValue(true)}),
	}
	data, err := json.Marshal(bag)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":9,"c":"USD","m":{"ok":true}}`, string(data))
}

func TestValueOf_ZeroValueRejected(t *testing.T) {
	_, err := ValueOf(Value{})
	require.Error(t, err)
}
