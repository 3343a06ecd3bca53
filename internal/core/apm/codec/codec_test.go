package codec

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeID(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
	hexLower := hex.EncodeToString(raw)
	b64 := base64.StdEncoding.EncodeToString(raw)

	assert.Equal(t, hexLower, DecodeID(b64))
	assert.Equal(t, "not-base64-!!", DecodeID("not-base64-!!"))

	// Round-trip: decoding a hex-lower string may itself be valid base64
	// (alphanumeric strings often are); in either case the result must be
	// one of the two canonical forms (P6).
	got := DecodeID(hexLower)
	if got != hexLower {
		decoded, err := base64.StdEncoding.DecodeString(hexLower)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(decoded), got)
	}
}

func TestParseNano(t *testing.T) {
	n, err := ParseNano("1700000000000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000000000), n)

	_, err = ParseNano("not-a-number")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	_, err = ParseNano("")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool      { return &b }

func TestFlattenAttributes(t *testing.T) {
	kvs := []KeyValue{
		{Key: "str", Value: Value{StringValue: strPtr("hello")}},
		{Key: "int", Value: Value{IntValue: strPtr("42")}},
		{Key: "double", Value: Value{DoubleValue: f64Ptr(3.14)}},
		{Key: "bool", Value: Value{BoolValue: boolPtr(true)}},
		{Key: "empty", Value: Value{}},
	}

	got := FlattenAttributes(kvs)
	assert.Equal(t, "hello", got["str"])
	assert.Equal(t, "42", got["int"])
	assert.Equal(t, "3.14", got["double"])
	assert.Equal(t, "true", got["bool"])
	_, ok := got["empty"]
	assert.False(t, ok)
}
