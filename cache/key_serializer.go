package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// DefaultMaxSegment is the segment length above which the default serializer
// replaces a segment with its digest.
const DefaultMaxSegment = 64

// digestPrefix marks a segment that was replaced by its digest.
const digestPrefix = "h:"

// defaultKeySerializer implements KeySerializer with deterministic formatting.
// Segments longer than maxSegment are replaced by an xxhash digest so encoded
// queries do not produce unbounded keys. The method and leading short segments
// stay readable, which keeps prefix invalidation working.
type defaultKeySerializer struct {
	maxSegment int
}

// NewDefaultKeySerializer creates a serializer that digests segments longer than DefaultMaxSegment.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{maxSegment: DefaultMaxSegment}
}

// NewKeySerializer creates a serializer that digests segments longer than maxSegment.
// A non-positive maxSegment disables digesting.
func NewKeySerializer(maxSegment int) KeySerializer {
	return &defaultKeySerializer{maxSegment: maxSegment}
}

// SerializeKey joins the method and every serialized argument with KeySeparator.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		seg := serializeValue(arg)
		if s.maxSegment > 0 && len(seg) > s.maxSegment {
			seg = digestPrefix + Digest(seg)
		}
		parts = append(parts, seg)
	}

	return strings.Join(parts, KeySeparator)
}

// KeyPrefix returns the prefix shared by every key serialized with method and
// the given leading args. It assumes serializer joins segments with KeySeparator.
func KeyPrefix(serializer KeySerializer, method string, args ...any) string {
	return serializer.SerializeKey(method, args...) + KeySeparator
}

// Digest returns the 64-bit xxhash of s as 16 hex characters.
func Digest(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem().Interface())

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprintf("%v", v)

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = serializeValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"

	case reflect.Map:
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, serializeValue(iter.Key().Interface())+"="+serializeValue(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "type:" + reflect.TypeOf(v).String()
	}
	return string(data)
}
