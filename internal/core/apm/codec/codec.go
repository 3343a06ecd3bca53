// Package codec decodes OTLP identifiers and timestamps and flattens
// OTLP attribute key-value lists into plain string maps.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
)

// KeyValue mirrors the OTLP JSON {key, value} attribute shape, where value
// is a union of the fields below (only one is ever populated).
type KeyValue struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Value is the OTLP AnyValue union as it appears in OTLP-JSON.
type Value struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"` // OTLP JSON encodes int64 as a string
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
}

// DecodeID returns the lower-case hex encoding of s's bytes if s is valid
// standard base64; otherwise it returns s unchanged. OTLP-JSON permits
// span/trace ids to be sent as either hex or base64.
func DecodeID(s string) string {
	if s == "" {
		return s
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return hex.EncodeToString(decoded)
}

// ParseNano parses a decimal nanosecond timestamp string.
func ParseNano(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty timestamp", ErrInvalidTimestamp)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}
	return n, nil
}

// ErrInvalidTimestamp is returned by ParseNano when s is not a valid
// signed 64-bit decimal integer.
var ErrInvalidTimestamp = fmt.Errorf("invalid timestamp")

// FlattenAttributes converts an OTLP key-value list into a flat
// string->string map. For each entry it picks the first populated field
// of the value union in the order {string, int, double, bool}; entries
// with no populated field are skipped. Array-valued attributes are not
// representable in this union and are dropped by design.
func FlattenAttributes(kvs []KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		switch {
		case kv.Value.StringValue != nil:
			out[kv.Key] = *kv.Value.StringValue
		case kv.Value.IntValue != nil:
			out[kv.Key] = *kv.Value.IntValue
		case kv.Value.DoubleValue != nil:
			out[kv.Key] = strconv.FormatFloat(*kv.Value.DoubleValue, 'g', -1, 64)
		case kv.Value.BoolValue != nil:
			out[kv.Key] = strconv.FormatBool(*kv.Value.BoolValue)
		}
	}
	return out
}
