// Package fetch implements the get-or-fetch and get-and-fetch-latest
// operations: the layer that turns a typed cache into a read-through
// cache in front of a caller-supplied fetch function. In-flight fetches
// for the same key are deduplicated via golang.org/x/sync/singleflight,
// grounded on otterscale-otterscale-agent's discovery cache, which uses
// the same group-keyed-by-request pattern in front of its schema loader.
package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/diagnostic"
	"github.com/reactiveui/akavache-go/pkg/metrics"
)

// Func produces the value to cache for a key. It is called at most once
// concurrently per key regardless of how many callers are waiting on it.
type Func[T any] func(ctx context.Context) (T, error)

// Cache is the subset of objectcache.Cache[T] the Deduper depends on.
type Cache[T any] interface {
	GetObject(ctx context.Context, key string) (T, error)
	InsertObject(ctx context.Context, key string, obj T, expiration time.Time) error
}

// createdAtCache is implemented by caches that can report a key's
// CreatedAt, which objectcache.Cache[T] does. Asserted for optionally
// when a shouldFetch predicate is configured.
type createdAtCache interface {
	GetObjectCreatedAt(ctx context.Context, key string) (time.Time, error)
}

// invalidatableCache is implemented by caches that can remove an entry,
// which objectcache.Cache[T] does. Asserted for optionally when
// WithInvalidateOnError is configured.
type invalidatableCache interface {
	InvalidateObject(ctx context.Context, key string) error
}

// Option configures a single GetAndFetchLatest call.
type Option[T any] func(*fetchOptions[T])

type fetchOptions[T any] struct {
	shouldFetch       func(createdAt time.Time) bool
	cacheValid        func(obj T) bool
	invalidateOnError bool
}

// WithShouldFetchPredicate skips fetchFn (and the second emission
// entirely) when predicate returns false for the currently cached
// entry's CreatedAt. Has no effect when nothing is cached yet.
func WithShouldFetchPredicate[T any](predicate func(createdAt time.Time) bool) Option[T] {
	return func(o *fetchOptions[T]) { o.shouldFetch = predicate }
}

// WithCacheValidationPredicate skips re-storing the freshly fetched value
// when predicate reports the fetched value is already equivalent to what
// is cached.
func WithCacheValidationPredicate[T any](predicate func(obj T) bool) Option[T] {
	return func(o *fetchOptions[T]) { o.cacheValid = predicate }
}

// WithInvalidateOnError removes the cached entry at key when fetchFn
// fails, instead of leaving the stale value in place.
func WithInvalidateOnError[T any](invalidate bool) Option[T] {
	return func(o *fetchOptions[T]) { o.invalidateOnError = invalidate }
}

// Deduper implements GetOrFetch and GetAndFetchLatest over a Cache[T].
type Deduper[T any] struct {
	cache       Cache[T]
	group       singleflight.Group
	diagnostics *diagnostic.Sink
	instance    string
}

// New builds a Deduper over cache.
func New[T any](cache Cache[T]) *Deduper[T] {
	return &Deduper[T]{cache: cache}
}

// WithDiagnostics attaches sink so fetch/insert failures that would
// otherwise be swallowed are still observable, and returns d for
// chaining at construction time.
func (d *Deduper[T]) WithDiagnostics(sink *diagnostic.Sink) *Deduper[T] {
	d.diagnostics = sink
	return d
}

// WithInstance labels this Deduper's fetch metrics with instance, the
// name of the cache instance it sits in front of, and returns d for
// chaining at construction time.
func (d *Deduper[T]) WithInstance(instance string) *Deduper[T] {
	d.instance = instance
	return d
}

// fetchOnce calls fn through the singleflight group, recording whether
// this caller joined an already in-flight call or started a new one.
func (d *Deduper[T]) fetchOnce(key string, fn func() (any, error)) (any, error) {
	// singleflight's shared flag is also true for the caller that ran fn
	// whenever others joined it, so track which caller's fn actually ran.
	ran := false
	v, err, _ := d.group.Do(key, func() (any, error) {
		ran = true
		return fn()
	})
	if !ran {
		metrics.FetchDeduplicatedTotal.WithLabelValues(d.instance).Inc()
	} else {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.FetchCallsTotal.WithLabelValues(d.instance, outcome).Inc()
	}
	return v, err
}

// GetOrFetch returns the cached value at key if live, otherwise calls fn,
// stores its result under key with the given expiration, and returns it.
// Concurrent GetOrFetch calls for the same key that miss the cache share
// a single call to fn. If fn succeeds but the follow-up store fails, the
// fetched value is still returned to every waiter; the cache is simply
// left unupdated and a diagnostic event is published if a sink is set.
func (d *Deduper[T]) GetOrFetch(ctx context.Context, key string, fn Func[T], expiration time.Time) (T, error) {
	if obj, err := d.cache.GetObject(ctx, key); err == nil {
		return obj, nil
	} else if kind, ok := akerrors.KindOf(err); !ok || kind != akerrors.KeyNotFound {
		var zero T
		return zero, err
	}

	v, err := d.fetchOnce(key, func() (any, error) {
		obj, err := fn(ctx)
		if err != nil {
			return obj, err
		}
		d.storeAfterFetch(ctx, key, obj, expiration)
		return obj, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// storeAfterFetch inserts obj into the cache, publishing a diagnostic
// event instead of propagating the error if the insert fails: the fetch
// itself already succeeded and the caller's waiters expect its value.
func (d *Deduper[T]) storeAfterFetch(ctx context.Context, key string, obj T, expiration time.Time) {
	if err := d.cache.InsertObject(ctx, key, obj, expiration); err != nil && d.diagnostics != nil {
		d.diagnostics.Publish(diagnostic.Event{
			Kind: diagnostic.KindInsertAfterFetchFailed,
			Key:  key,
			Err:  err,
		})
	}
}

// Emission is one value delivered on a Stream.
type Emission[T any] struct {
	Value     T
	Err       error
	FromCache bool
}

// Stream delivers at most two Emissions: the cached value (if one was
// present when GetAndFetchLatest was called) and then the freshly
// fetched value, in that order. The channel is closed after the second
// emission, or after the first if there was nothing cached to emit.
type Stream[T any] <-chan Emission[T]

// GetAndFetchLatest immediately emits the cached value at key if one
// exists, then calls fn (deduplicated per key the same way GetOrFetch is)
// and emits its result, storing it under key with the given expiration on
// success. opts can narrow this default behavior: WithShouldFetchPredicate
// skips fn altogether based on the cached entry's CreatedAt,
// WithCacheValidationPredicate skips the follow-up store, and
// WithInvalidateOnError removes the stale entry when fn fails.
func (d *Deduper[T]) GetAndFetchLatest(ctx context.Context, key string, fn Func[T], expiration time.Time, opts ...Option[T]) Stream[T] {
	var fo fetchOptions[T]
	for _, opt := range opts {
		opt(&fo)
	}

	out := make(chan Emission[T], 2)

	go func() {
		defer close(out)

		haveCached := false
		if obj, err := d.cache.GetObject(ctx, key); err == nil {
			haveCached = true
			select {
			case out <- Emission[T]{Value: obj, FromCache: true}:
			case <-ctx.Done():
				return
			}
		}

		if haveCached && fo.shouldFetch != nil {
			if cac, ok := d.cache.(createdAtCache); ok {
				createdAt, err := cac.GetObjectCreatedAt(ctx, key)
				if err == nil && !fo.shouldFetch(createdAt) {
					return
				}
			}
		}

		v, err := d.fetchOnce(key, func() (any, error) {
			obj, err := fn(ctx)
			if err != nil {
				return obj, err
			}
			if fo.cacheValid == nil || !fo.cacheValid(obj) {
				d.storeAfterFetch(ctx, key, obj, expiration)
			}
			return obj, nil
		})

		var emission Emission[T]
		if err != nil {
			emission.Err = err
			if fo.invalidateOnError {
				if ic, ok := d.cache.(invalidatableCache); ok {
					_ = ic.InvalidateObject(ctx, key)
				}
			}
		} else {
			emission.Value = v.(T)
		}
		select {
		case out <- emission:
		case <-ctx.Done():
		}
	}()

	return out
}
