// Package objectcache implements the typed object layer: Cache[T] adapts
// the byte-oriented blob-cache engine to store and retrieve structured
// values, tagging each entry with T's type name so GetAllObjects can
// select by type without scanning unrelated entries.
package objectcache

import (
	"context"
	"reflect"
	"time"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/model"
	"github.com/reactiveui/akavache-go/pkg/serializer"
)

// Engine is the subset of blobcache.Engine the object layer is built on.
type Engine interface {
	InsertMany(ctx context.Context, elements []model.CacheElement) error
	GetMany(ctx context.Context, keys []string) (map[string]model.CacheElement, error)
	GetManyByType(ctx context.Context, types []string) ([]model.CacheElement, error)
	GetCreatedAt(ctx context.Context, key string) (time.Time, error)
	GetCreatedAtMany(ctx context.Context, keys []string) (map[string]time.Time, error)
	Invalidate(ctx context.Context, key string) error
	InvalidateMany(ctx context.Context, keys []string) error
	InvalidateByType(ctx context.Context, types []string) error
}

// Cache is a typed view over a blob-cache engine. One Cache[T] handles
// exactly one Go type T; multiple Cache[T] instances over the same
// underlying engine share the same bucket but are isolated from each
// other by T's stable type name.
type Cache[T any] struct {
	engine     Engine
	serializer serializer.Serializer
	typeName   string
}

// New builds a Cache[T] over engine using ser to encode values.
func New[T any](engine Engine, ser serializer.Serializer) *Cache[T] {
	return &Cache[T]{
		engine:     engine,
		serializer: ser,
		typeName:   stableNameOf[T](),
	}
}

func stableNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type, so its zero value is a nil interface;
		// the element type of &zero still resolves the static type.
		t = reflect.TypeOf(&zero).Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// InsertObject encodes obj and stores it under key.
func (c *Cache[T]) InsertObject(ctx context.Context, key string, obj T, expiration time.Time) error {
	if key == "" {
		return akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "objectcache: key must not be empty")
	}
	return c.InsertObjects(ctx, map[string]T{key: obj}, expiration)
}

// InsertObjects encodes and stores every value in objs as a single
// batched write.
func (c *Cache[T]) InsertObjects(ctx context.Context, objs map[string]T, expiration time.Time) error {
	if len(objs) == 0 {
		return nil
	}
	for key := range objs {
		if key == "" {
			return akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "objectcache: key must not be empty")
		}
	}
	elements := make([]model.CacheElement, 0, len(objs))
	for key, obj := range objs {
		data, err := c.serializer.Serialize(obj, serializer.Options{})
		if err != nil {
			return err
		}
		elements = append(elements, model.CacheElement{
			Key:        key,
			TypeName:   c.typeName,
			Value:      data,
			Expiration: expiration,
		})
	}
	return c.engine.InsertMany(ctx, elements)
}

// GetObject decodes and returns the live value stored at key.
func (c *Cache[T]) GetObject(ctx context.Context, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "objectcache: key must not be empty")
	}
	objs, err := c.GetObjects(ctx, []string{key})
	if err != nil {
		return zero, err
	}
	obj, ok := objs[key]
	if !ok {
		return zero, akerrors.Wrap(akerrors.KeyNotFound, akerrors.ErrKeyNotFound, "objectcache: key %q not found", key)
	}
	return obj, nil
}

// GetObjects decodes and returns every live value among keys, keyed by
// key. A key that is absent, expired, or was stored under a different
// type is simply missing from the result. A key whose stored bytes fail
// to deserialize under T is dropped rather than failing the whole call,
// so one corrupt entry can't take down a bulk read of otherwise-good ones.
func (c *Cache[T]) GetObjects(ctx context.Context, keys []string) (map[string]T, error) {
	for _, k := range keys {
		if k == "" {
			return nil, akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "objectcache: key must not be empty")
		}
	}
	elems, err := c.engine.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(elems))
	for key, el := range elems {
		if el.TypeName != c.typeName {
			continue
		}
		var obj T
		if err := c.serializer.Deserialize(el.Value, &obj); err != nil {
			continue
		}
		out[key] = obj
	}
	return out, nil
}

// GetAllObjects returns every live value of type T in the cache. As in
// GetObjects, an entry that fails to deserialize is dropped rather than
// failing the call.
func (c *Cache[T]) GetAllObjects(ctx context.Context) (map[string]T, error) {
	elems, err := c.engine.GetManyByType(ctx, []string{c.typeName})
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(elems))
	for _, el := range elems {
		var obj T
		if err := c.serializer.Deserialize(el.Value, &obj); err != nil {
			continue
		}
		out[el.Key] = obj
	}
	return out, nil
}

// GetObjectCreatedAt returns the CreatedAt timestamp of the live value at key.
func (c *Cache[T]) GetObjectCreatedAt(ctx context.Context, key string) (time.Time, error) {
	return c.engine.GetCreatedAt(ctx, key)
}

// GetObjectCreatedAtMany returns the CreatedAt timestamp of every live
// value among keys, keyed by key.
func (c *Cache[T]) GetObjectCreatedAtMany(ctx context.Context, keys []string) (map[string]time.Time, error) {
	return c.engine.GetCreatedAtMany(ctx, keys)
}

// InvalidateObject removes key, if present.
func (c *Cache[T]) InvalidateObject(ctx context.Context, key string) error {
	return c.engine.Invalidate(ctx, key)
}

// InvalidateObjects removes every key in keys, as a single batched write.
func (c *Cache[T]) InvalidateObjects(ctx context.Context, keys []string) error {
	return c.engine.InvalidateMany(ctx, keys)
}

// InvalidateAllObjects removes every entry of type T, leaving other types
// in the same underlying cache untouched.
func (c *Cache[T]) InvalidateAllObjects(ctx context.Context) error {
	return c.engine.InvalidateByType(ctx, []string{c.typeName})
}
