package fetch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/fetch"
)

// memCache is a minimal in-memory fetch.Cache[T] for unit-testing the
// deduper without pulling in the storage driver. It also implements the
// optional createdAtCache and invalidatableCache interfaces fetch.go
// asserts for when GetAndFetchLatest options are configured.
type memCache[T any] struct {
	mu        sync.Mutex
	items     map[string]T
	createdAt map[string]time.Time
}

func newMemCache[T any]() *memCache[T] {
	return &memCache[T]{items: make(map[string]T), createdAt: make(map[string]time.Time)}
}

func (c *memCache[T]) GetObject(ctx context.Context, key string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		var zero T
		return zero, akerrors.ErrKeyNotFound
	}
	return v, nil
}

func (c *memCache[T]) InsertObject(ctx context.Context, key string, obj T, expiration time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = obj
	c.createdAt[key] = time.Now()
	return nil
}

func (c *memCache[T]) GetObjectCreatedAt(ctx context.Context, key string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.createdAt[key]
	if !ok {
		return time.Time{}, akerrors.ErrKeyNotFound
	}
	return t, nil
}

func (c *memCache[T]) InvalidateObject(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	delete(c.createdAt, key)
	return nil
}

func TestGetOrFetchReturnsCachedValueWithoutCallingFetch(t *testing.T) {
	cache := newMemCache[string]()
	_ = cache.InsertObject(context.Background(), "k", "cached", time.Time{})
	d := fetch.New[string](cache)

	called := false
	v, err := d.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		called = true
		return "fetched", nil
	}, time.Now().Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, "cached", v)
	assert.False(t, called)
}

func TestGetOrFetchCallsFetchOnMissAndStores(t *testing.T) {
	cache := newMemCache[string]()
	d := fetch.New[string](cache)

	v, err := d.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "fetched", nil
	}, time.Now().Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, "fetched", v)

	stored, err := cache.GetObject(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "fetched", stored)
}

func TestGetOrFetchDeduplicatesConcurrentMisses(t *testing.T) {
	cache := newMemCache[string]()
	d := fetch.New[string](cache)

	var calls int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]string, 10)

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := d.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "value", nil
			}, time.Now().Add(time.Hour))
			require.NoError(t, err)
			results[i] = v
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
}

func TestGetAndFetchLatestEmitsCachedThenFresh(t *testing.T) {
	cache := newMemCache[string]()
	_ = cache.InsertObject(context.Background(), "k", "stale", time.Time{})
	d := fetch.New[string](cache)

	stream := d.GetAndFetchLatest(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "fresh", nil
	}, time.Now().Add(time.Hour))

	first := <-stream
	assert.True(t, first.FromCache)
	assert.Equal(t, "stale", first.Value)

	second := <-stream
	assert.False(t, second.FromCache)
	assert.Equal(t, "fresh", second.Value)

	_, ok := <-stream
	assert.False(t, ok)
}

func TestGetAndFetchLatestWithNoCachedValueEmitsOnlyFresh(t *testing.T) {
	cache := newMemCache[string]()
	d := fetch.New[string](cache)

	stream := d.GetAndFetchLatest(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "fresh", nil
	}, time.Now().Add(time.Hour))

	only := <-stream
	assert.False(t, only.FromCache)
	assert.Equal(t, "fresh", only.Value)

	_, ok := <-stream
	assert.False(t, ok)
}

func TestGetAndFetchLatestShouldFetchPredicateSkipsFetchWhenFalse(t *testing.T) {
	cache := newMemCache[string]()
	_ = cache.InsertObject(context.Background(), "k", "stale", time.Time{})
	d := fetch.New[string](cache)

	called := false
	stream := d.GetAndFetchLatest(context.Background(), "k", func(ctx context.Context) (string, error) {
		called = true
		return "fresh", nil
	}, time.Now().Add(time.Hour), fetch.WithShouldFetchPredicate[string](func(createdAt time.Time) bool {
		return false
	}))

	first := <-stream
	assert.True(t, first.FromCache)
	assert.Equal(t, "stale", first.Value)

	_, ok := <-stream
	assert.False(t, ok)
	assert.False(t, called)
}

func TestGetAndFetchLatestCacheValidationPredicateSkipsReinsert(t *testing.T) {
	cache := newMemCache[string]()
	_ = cache.InsertObject(context.Background(), "k", "stale", time.Time{})
	before, err := cache.GetObjectCreatedAt(context.Background(), "k")
	require.NoError(t, err)
	d := fetch.New[string](cache)

	stream := d.GetAndFetchLatest(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "fresh", nil
	}, time.Now().Add(time.Hour), fetch.WithCacheValidationPredicate[string](func(obj string) bool {
		return true
	}))

	<-stream // cached emission
	second := <-stream
	assert.Equal(t, "fresh", second.Value)

	after, err := cache.GetObjectCreatedAt(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, before, after, "cache validation predicate should have suppressed the re-store")

	stored, err := cache.GetObject(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "stale", stored)
}

func TestGetAndFetchLatestInvalidatesOnErrorWhenConfigured(t *testing.T) {
	cache := newMemCache[string]()
	_ = cache.InsertObject(context.Background(), "k", "stale", time.Time{})
	d := fetch.New[string](cache)

	stream := d.GetAndFetchLatest(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "", assert.AnError
	}, time.Now().Add(time.Hour), fetch.WithInvalidateOnError[string](true))

	<-stream // cached emission
	second := <-stream
	assert.Error(t, second.Err)

	_, err := cache.GetObject(context.Background(), "k")
	assert.ErrorIs(t, err, akerrors.ErrKeyNotFound)
}
