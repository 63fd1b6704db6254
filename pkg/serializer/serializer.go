// Package serializer provides the codec capability the engine consumes to
// turn application values into bytes and back. The engine is agnostic to
// the wire format; this package's JSON serializer is the default, and a
// migration can swap in another Serializer without touching the storage
// driver or the object layer.
package serializer

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
)

// TimestampKind controls how time.Time fields are normalized when encoding.
type TimestampKind int

const (
	// TimestampNone leaves timestamps untouched.
	TimestampNone TimestampKind = iota
	// TimestampUTC forces every encoded time.Time to UTC.
	TimestampUTC
	// TimestampLocal forces every encoded time.Time to the local zone.
	TimestampLocal
)

// Options configures a single Serialize call.
type Options struct {
	ForcedTimestampKind TimestampKind
}

// Serializer encodes and decodes application values as bytes.
type Serializer interface {
	Serialize(v any, opts Options) ([]byte, error)
	Deserialize(data []byte, out any) error
}

// JSON is the default Serializer, backed by encoding/json.
type JSON struct{}

// NewJSON returns a JSON serializer.
func NewJSON() *JSON { return &JSON{} }

// Serialize encodes v as JSON, normalizing time.Time fields per opts.
func (JSON) Serialize(v any, opts Options) ([]byte, error) {
	if opts.ForcedTimestampKind != TimestampNone {
		v = normalizeTimestamps(v, opts.ForcedTimestampKind)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, akerrors.Wrap(akerrors.Serialization, err, "json: failed to encode value")
	}
	return data, nil
}

// Deserialize decodes JSON bytes into out.
func (JSON) Deserialize(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return akerrors.Wrap(akerrors.Deserialization, err, "json: failed to decode value")
	}
	return nil
}

// normalizeTimestamps walks a copy of v's top-level struct fields (one
// level deep, which covers the common "flat DTO" case the forced-timestamp
// option exists for) and rewrites any time.Time field to the requested
// zone. Non-struct/non-pointer-to-struct values pass through unchanged.
func normalizeTimestamps(v any, kind TimestampKind) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return v
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return v
	}

	cloned := reflect.New(rv.Type()).Elem()
	cloned.Set(rv)

	timeType := reflect.TypeOf(time.Time{})
	for i := 0; i < cloned.NumField(); i++ {
		f := cloned.Field(i)
		if !f.CanSet() || f.Type() != timeType {
			continue
		}
		t := f.Interface().(time.Time)
		switch kind {
		case TimestampUTC:
			f.Set(reflect.ValueOf(t.UTC()))
		case TimestampLocal:
			f.Set(reflect.ValueOf(t.Local()))
		}
	}
	return cloned.Addr().Interface()
}
