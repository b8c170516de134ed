package prefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/jgraettinger/cockroach-encoding/encoding"
)

// BoolAdapter encodes bools as "true" or "false".
func BoolAdapter() Adapter[bool] {
	return NewAdapter(
		func(v bool) ([]byte, error) { return []byte(strconv.FormatBool(v)), nil },
		func(b []byte) (bool, error) { return strconv.ParseBool(string(b)) },
		equalComparable[bool],
	)
}

// IntAdapter encodes int64s with an order-preserving varint encoding.
func IntAdapter() Adapter[int64] {
	return NewAdapter(
		func(v int64) ([]byte, error) { return encoding.EncodeVarintAscending(nil, v), nil },
		func(b []byte) (int64, error) {
			var rem, v, err = encoding.DecodeVarintAscending(b)
			if err == nil && len(rem) != 0 {
				err = fmt.Errorf("unexpected %d trailing bytes", len(rem))
			}
			return v, err
		},
		equalComparable[int64],
	)
}

// FloatAdapter encodes float64s with an order-preserving encoding.
// NaN is considered equal to itself.
func FloatAdapter() Adapter[float64] {
	return NewAdapter(
		func(v float64) ([]byte, error) { return encoding.EncodeFloatAscending(nil, v), nil },
		func(b []byte) (float64, error) {
			var rem, v, err = encoding.DecodeFloatAscending(b)
			if err == nil && len(rem) != 0 {
				err = fmt.Errorf("unexpected %d trailing bytes", len(rem))
			}
			return v, err
		},
		func(a, b float64) bool { return a == b || (math.IsNaN(a) && math.IsNaN(b)) },
	)
}

// StringAdapter stores strings verbatim.
func StringAdapter() Adapter[string] {
	return NewAdapter(
		func(v string) ([]byte, error) { return []byte(v), nil },
		func(b []byte) (string, error) { return string(b), nil },
		equalComparable[string],
	)
}

// BytesAdapter stores byte slices verbatim.
func BytesAdapter() Adapter[[]byte] {
	return NewAdapter(
		func(v []byte) ([]byte, error) { return v, nil },
		func(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil },
		bytes.Equal,
	)
}

// StringListAdapter encodes an ordered list of strings.
func StringListAdapter() Adapter[[]string] {
	return NewAdapter(encodeStrings, decodeStrings, slices.Equal[[]string, string])
}

// StringSetAdapter encodes a set of strings, represented as a slice.
// Duplicates are removed and members sorted when encoded, and decoded sets
// are sorted. Sets are equal if they have the same members.
func StringSetAdapter() Adapter[[]string] {
	return NewAdapter(
		func(v []string) ([]byte, error) { return encodeStrings(normalizeSet(v)) },
		decodeStrings,
		func(a, b []string) bool { return slices.Equal(normalizeSet(a), normalizeSet(b)) },
	)
}

// TimeAdapter encodes time.Times using their binary marshaling, which
// preserves the location offset. Times are equal if they represent the same
// instant, as with time.Time.Equal.
func TimeAdapter() Adapter[time.Time] {
	return NewAdapter(
		func(v time.Time) ([]byte, error) { return v.MarshalBinary() },
		func(b []byte) (t time.Time, err error) { err = t.UnmarshalBinary(b); return },
		time.Time.Equal,
	)
}

// JSONAdapter encodes values of T as JSON. Values are equal if they're
// deeply equal, as with reflect.DeepEqual.
func JSONAdapter[T any]() Adapter[T] {
	return NewAdapter(
		func(v T) ([]byte, error) { return json.Marshal(v) },
		func(b []byte) (v T, err error) { err = json.Unmarshal(b, &v); return },
		func(a, b T) bool { return reflect.DeepEqual(a, b) },
	)
}

// ProtoAdapter encodes protobuf messages of T. |newFn| returns a new,
// empty message into which values are decoded.
func ProtoAdapter[T proto.Message](newFn func() T) Adapter[T] {
	return NewAdapter(
		func(v T) ([]byte, error) { return proto.Marshal(v) },
		func(b []byte) (T, error) {
			var m = newFn()
			return m, proto.Unmarshal(b, m)
		},
		func(a, b T) bool { return proto.Equal(a, b) },
	)
}

func encodeStrings(v []string) ([]byte, error) {
	var b []byte
	for _, s := range v {
		b = encoding.EncodeBytesAscending(b, []byte(s))
	}
	return b, nil
}

func decodeStrings(b []byte) ([]string, error) {
	var out = []string{}
	for len(b) != 0 {
		var s []byte
		var err error

		if b, s, err = encoding.DecodeBytesAscending(b, nil); err != nil {
			return nil, err
		}
		out = append(out, string(s))
	}
	return out, nil
}

// normalizeSet returns a sorted, de-duplicated copy of |v|.
func normalizeSet(v []string) []string {
	var out = append([]string{}, v...)
	sort.Strings(out)
	return slices.Compact(out)
}
