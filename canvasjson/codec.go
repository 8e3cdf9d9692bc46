// Package canvasjson escapes nested arrays inside canvas snapshots so they
// can round-trip through document stores that only store arrays one level
// deep. Every native array is replaced by an object keyed by stringified
// indices plus two sentinel fields; Decode reverses the transform.
//
// Encode is applied exactly once on the way into the store and Decode
// exactly once on the way out. Double-encoding or skipping either side is a
// correctness bug; the round-trip tests guard against it.
//
// The sentinel keys "__nestedArray" and "__length" are reserved. A snapshot
// object that already carries both (a __nestedArray of true next to a
// numeric __length) is indistinguishable from an encoded array and Decode
// will turn it into one, so such input does not round-trip. Canvas
// libraries do not emit these keys; hand-crafted payloads can.
package canvasjson

import "strconv"

const (
	// arrayMarkerKey tags an object as an encoded array.
	arrayMarkerKey = "__nestedArray"
	// arrayLengthKey records the original array length.
	arrayLengthKey = "__length"
)

// Encode walks a JSON-compatible value (the encoding/json value domain:
// nil, bool, float64, string, []any, map[string]any) and replaces every
// array with its index-keyed object form. Scalars pass through unchanged.
func Encode(v any) any {
	switch val := v.(type) {
	case []any:
		encoded := make(map[string]any, len(val)+2)
		encoded[arrayMarkerKey] = true
		encoded[arrayLengthKey] = len(val)
		for i, item := range val {
			encoded[strconv.Itoa(i)] = Encode(item)
		}
		return encoded
	case map[string]any:
		encoded := make(map[string]any, len(val))
		for k, item := range val {
			encoded[k] = Encode(item)
		}
		return encoded
	default:
		return v
	}
}

// Decode reverses Encode. An object carrying both sentinel fields is
// rebuilt into an array of the recorded length; indices absent from the
// object become nil holes. Any other object has its values decoded
// recursively; scalars pass through unchanged.
func Decode(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}

	if isEncodedArray(obj) {
		length, _ := asInt(obj[arrayLengthKey])
		if length < 0 {
			length = 0
		}
		arr := make([]any, length)
		for i := 0; i < length; i++ {
			if item, ok := obj[strconv.Itoa(i)]; ok {
				arr[i] = Decode(item)
			}
		}
		return arr
	}

	decoded := make(map[string]any, len(obj))
	for k, item := range obj {
		decoded[k] = Decode(item)
	}
	return decoded
}

func isEncodedArray(obj map[string]any) bool {
	marker, ok := obj[arrayMarkerKey].(bool)
	if !ok || !marker {
		return false
	}
	_, hasLength := asInt(obj[arrayLengthKey])
	return hasLength
}

// asInt accepts the numeric types a length survives storage as:
// int from Encode in-process, float64 after a JSON round trip, int64 from
// attributevalue unmarshalling.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
