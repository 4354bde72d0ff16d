package encoding

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var JSONiter = jsoniter.Config{
	EscapeHTML:              false,
	MarshalFloatWith6Digits: false,
	DisallowUnknownFields:   false,
	OnlyTaggedField:         false,
	ValidateJsonRawMessage:  false,
	CaseSensitive:           true,
	UseNumber:               true,
	SortMapKeys:             true,
}.Froze()

// MaybeGetInt64 accepts the shapes a number takes after a round trip through
// JSONiter (json.Number), a query string (string), or an in-memory variant (Go ints).
func MaybeGetInt64(numberish interface{}) (int64, bool) {
	switch n := numberish.(type) {
	case json.Number:
		v, err := n.Int64()
		return v, err == nil
	case string:
		v, err := strconv.ParseInt(n, 10, 64)
		return v, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func MaybeGetUint64(numberish interface{}) (uint64, bool) {
	switch n := numberish.(type) {
	case json.Number:
		v, err := strconv.ParseUint(n.String(), 10, 64)
		return v, err == nil
	case string:
		v, err := strconv.ParseUint(n, 10, 64)
		return v, err == nil
	case uint64:
		return n, true
	}
	v, ok := MaybeGetInt64(numberish)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// MaybeGetString accepts strings and anything with a String method, which
// covers the name and asset values produced by ABI decoding.
func MaybeGetString(stringish interface{}) (string, bool) {
	switch s := stringish.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}
