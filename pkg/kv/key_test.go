package kv

import (
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"mixed", MustKey("foo", "bar", 1, true), `["foo","bar",1,true]`},
		{"single", MustKey("foo"), `["foo"]`},
		{"false", MustKey(false), `[false]`},
		{"float", MustKey(1.5, -2.25), `[1.5,-2.25]`},
		{"integral float", MustKey(Float(3)), `[3]`},
		{"negative zero", MustKey(math.Copysign(0, -1)), `[0]`},
		{"uint64", MustKey(uint64(math.MaxUint64)), `[18446744073709551615]`},
		{"no html escaping", MustKey("<a&b>"), `["<a&b>"]`},
		{"unicode", MustKey("héllo", "日本"), `["héllo","日本"]`},
		{"quotes and control", MustKey("a\"b\n"), `["a\"b\n"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeKeyRejectsInvalid(t *testing.T) {
	_, err := EncodeKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncodeKey(Key{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncodeKey(Key{String("ok"), {}})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncodeKey(Key{String("\xff")})
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.Equal(t, "<invalid key>", Key{}.String())
}

func TestDecodeKeyRoundTrip(t *testing.T) {
	keys := []Key{
		MustKey("foo"),
		MustKey("foo", "bar", 1, true),
		MustKey("users", 42, false, 0.125),
		MustKey(int64(math.MinInt64), uint64(math.MaxUint64)),
		MustKey(1e21),
		MustKey("with,comma]", `back\slash`, "%_"),
	}
	for _, key := range keys {
		encoded, err := EncodeKey(key)
		require.NoError(t, err)

		decoded, err := DecodeKey(encoded)
		require.NoError(t, err, encoded)
		assert.True(t, key.Equal(decoded), "%s decoded to %v", encoded, decoded)

		again, err := EncodeKey(decoded)
		require.NoError(t, err)
		assert.Equal(t, encoded, again)
	}
}

func TestDecodeKeyRejects(t *testing.T) {
	for _, s := range []string{
		``,
		`[]`,
		`null`,
		`"foo"`,
		`[null]`,
		`[[1]]`,
		`[{"a":1}]`,
		`["a"] x`,
		`["a"]["b"]`,
		`[1,]`,
	} {
		_, err := DecodeKey(s)
		assert.ErrorIs(t, err, ErrInvalidKey, "input %q", s)
	}

	_, err := DecodeKey(" [\"a\"] \n")
	assert.NoError(t, err)
}

func TestNewKey(t *testing.T) {
	key, err := NewKey("a", int8(-1), uint16(2), float32(0.5), json.Number("7"), Bool(true))
	require.NoError(t, err)
	assert.Equal(t, `["a",-1,2,0.5,7,true]`, key.String())

	for _, bad := range []any{nil, struct{}{}, []string{"a"}, math.NaN(), math.Inf(1), json.Number("abc")} {
		_, err := NewKey("ok", bad)
		assert.ErrorIs(t, err, ErrInvalidKey, "part %#v", bad)
	}

	_, err = NewKey()
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.Panics(t, func() { MustKey() })
}

func TestNewKeyRejectsNonJSONNumbers(t *testing.T) {
	for _, n := range []string{"NaN", "Inf", "0x1p4", "0x10", "+1", "01", ".5", "1.", "1e", " 1", "1 ", "1e999", ""} {
		_, err := NewKey("p", json.Number(n))
		assert.ErrorIs(t, err, ErrInvalidKey, "number %q", n)
	}

	for _, n := range []string{"0", "-0", "1", "-12.5", "1e3", "2.5E-7"} {
		key, err := NewKey("p", json.Number(n))
		require.NoError(t, err, "number %q", n)

		decoded, err := DecodeKey(key.String())
		require.NoError(t, err, "number %q", n)
		assert.True(t, key.Equal(decoded), "number %q", n)
	}
}

func TestKeyPartAccessors(t *testing.T) {
	s, ok := String("x").Text()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Int(1).Text()
	assert.False(t, ok)

	i, ok := Int(-42).Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(-42), i)

	_, ok = Float(1.5).Int64()
	assert.False(t, ok)

	f, ok := Float(1.5).Float64()
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	b, ok := Bool(true).BoolValue()
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, KindNumber, Int(1).Kind())
	assert.Equal(t, "bool", Bool(false).Kind().String())
	assert.Equal(t, json.Number("3"), Int(3).Value())
	assert.Nil(t, KeyPart{}.Value())

	assert.True(t, Int(1).equal(Float(1)))
	assert.False(t, Int(1).equal(String("1")))
	assert.False(t, Bool(true).equal(Bool(false)))
}

func TestKeyJSON(t *testing.T) {
	type doc struct {
		Key Key `json:"key"`
	}
	data, err := json.Marshal(doc{Key: MustKey("a", 1, true)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":["a",1,true]}`, string(data))

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Key.Equal(MustKey("a", 1, true)))

	assert.Error(t, json.Unmarshal([]byte(`{"key":[]}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"key":"a"}`), &out))

	var p KeyPart
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &p))
	assert.Equal(t, "12.5", p.String())
	assert.ErrorIs(t, json.Unmarshal([]byte(`{}`), &p), ErrInvalidKey)
}

func TestEncodedKeysSortByteWise(t *testing.T) {
	var encoded []string
	for _, i := range []int{1, 10, 9, 0, 99, 11} {
		encoded = append(encoded, MustKey("foo", "bar", i).String())
	}
	sort.Strings(encoded)
	assert.Equal(t, []string{
		`["foo","bar",0]`,
		`["foo","bar",10]`,
		`["foo","bar",11]`,
		`["foo","bar",1]`,
		`["foo","bar",99]`,
		`["foo","bar",9]`,
	}, encoded)
}

func TestEncodePrefixPattern(t *testing.T) {
	tests := []struct {
		prefix Key
		want   string
	}{
		{MustKey("foo"), `["foo",%`},
		{MustKey("foo", "bar"), `["foo","bar",%`},
		{MustKey(1, true), `[1,true,%`},
		{MustKey("50%_off"), `["50\%\_off",%`},
		{MustKey(`a\b`), `["a\\\\b",%`},
	}
	for _, tt := range tests {
		got, err := EncodePrefixPattern(tt.prefix)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := EncodePrefixPattern(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
