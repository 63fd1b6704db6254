// Package blobcache implements the blob-cache engine: the byte-oriented
// cache surface every typed cache in pkg/objectcache is built on top of.
// Every method is a thin translation from its arguments into a
// pkg/queue.Op, submitted to a pkg/storage.Driver and awaited.
package blobcache

import (
	"context"
	"time"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/clock"
	"github.com/reactiveui/akavache-go/pkg/model"
	"github.com/reactiveui/akavache-go/pkg/queue"
)

// Submitter is the subset of *storage.Driver the engine depends on, kept
// narrow so tests can fake it without spinning up a real database.
type Submitter interface {
	Submit(ctx context.Context, op *queue.Op) (queue.Result, error)
}

// Engine is the blob-cache engine for one cache instance.
type Engine struct {
	driver Submitter
	clock  clock.Clock
}

// New builds an Engine over driver.
func New(driver Submitter, c clock.Clock) *Engine {
	if c == nil {
		c = clock.System{}
	}
	return &Engine{driver: driver, clock: c}
}

// Insert stores data under key, expiring at expiration (model.NeverExpires
// for no expiry).
func (e *Engine) Insert(ctx context.Context, key string, data []byte, expiration time.Time) error {
	if key == "" {
		return akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "blobcache: key must not be empty")
	}
	return e.InsertMany(ctx, []model.CacheElement{{
		Key:        key,
		Value:      data,
		Expiration: expiration,
		CreatedAt:  e.clock.Now(),
	}})
}

// InsertMany stores every element in elements as a single batched write.
// CreatedAt is stamped with the current instant for any element that
// leaves it zero.
func (e *Engine) InsertMany(ctx context.Context, elements []model.CacheElement) error {
	if len(elements) == 0 {
		return nil
	}
	for _, el := range elements {
		if el.Key == "" {
			return akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "blobcache: key must not be empty")
		}
	}
	now := e.clock.Now()
	for i := range elements {
		if elements[i].CreatedAt.IsZero() {
			elements[i].CreatedAt = now
		}
	}

	op := queue.NewOp(queue.BulkInsert)
	op.Elements = elements
	_, err := e.driver.Submit(ctx, op)
	return err
}

// Get returns the live value stored at key, or ErrKeyNotFound if key is
// absent or has expired.
func (e *Engine) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "blobcache: key must not be empty")
	}
	elems, err := e.GetMany(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	el, ok := elems[key]
	if !ok {
		return nil, akerrors.Wrap(akerrors.KeyNotFound, akerrors.ErrKeyNotFound, "blobcache: key %q not found", key)
	}
	return el.Value, nil
}

// GetMany returns every live element among keys, keyed by Key. Keys that
// are absent or expired are simply missing from the result, not an error.
// An empty key anywhere in keys fails the whole call with ArgumentNull; an
// empty keys list returns an empty map without submitting anything.
func (e *Engine) GetMany(ctx context.Context, keys []string) (map[string]model.CacheElement, error) {
	for _, k := range keys {
		if k == "" {
			return nil, akerrors.Wrap(akerrors.ArgumentNull, akerrors.ErrArgumentNull, "blobcache: key must not be empty")
		}
	}
	if len(keys) == 0 {
		return map[string]model.CacheElement{}, nil
	}
	op := queue.NewOp(queue.BulkSelectByKey)
	op.Keys = keys
	r, err := e.driver.Submit(ctx, op)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	out := make(map[string]model.CacheElement, len(r.Elements))
	for _, el := range r.Elements {
		if el.IsLive(now) {
			out[el.Key] = el
		}
	}
	return out, nil
}

// GetCreatedAt returns the CreatedAt timestamp of the live element at key.
func (e *Engine) GetCreatedAt(ctx context.Context, key string) (time.Time, error) {
	elems, err := e.GetMany(ctx, []string{key})
	if err != nil {
		return time.Time{}, err
	}
	el, ok := elems[key]
	if !ok {
		return time.Time{}, akerrors.Wrap(akerrors.KeyNotFound, akerrors.ErrKeyNotFound, "blobcache: key %q not found", key)
	}
	return el.CreatedAt, nil
}

// GetCreatedAtMany returns the CreatedAt timestamp of every live element
// among keys, keyed by Key. Keys that are absent or expired are simply
// missing from the result.
func (e *Engine) GetCreatedAtMany(ctx context.Context, keys []string) (map[string]time.Time, error) {
	elems, err := e.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(elems))
	for k, el := range elems {
		out[k] = el.CreatedAt
	}
	return out, nil
}

// GetManyByType returns every live element whose TypeName is in types.
// Used by the object layer to implement GetAllObjects.
func (e *Engine) GetManyByType(ctx context.Context, types []string) ([]model.CacheElement, error) {
	op := queue.NewOp(queue.BulkSelectByType)
	op.Types = types
	r, err := e.driver.Submit(ctx, op)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var live []model.CacheElement
	for _, el := range r.Elements {
		if el.IsLive(now) {
			live = append(live, el)
		}
	}
	return live, nil
}

// InvalidateByType removes every entry whose TypeName is in types. Used
// by the object layer to implement InvalidateAllObjects.
func (e *Engine) InvalidateByType(ctx context.Context, types []string) error {
	op := queue.NewOp(queue.BulkInvalidateByType)
	op.Types = types
	_, err := e.driver.Submit(ctx, op)
	return err
}

// GetAllKeys returns every live key, in no particular order.
func (e *Engine) GetAllKeys(ctx context.Context) ([]string, error) {
	r, err := e.driver.Submit(ctx, queue.NewOp(queue.GetKeys))
	if err != nil {
		return nil, err
	}
	return r.Keys, nil
}

// Invalidate removes key, if present.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	return e.InvalidateMany(ctx, []string{key})
}

// InvalidateMany removes every key in keys, as a single batched write.
func (e *Engine) InvalidateMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	op := queue.NewOp(queue.BulkInvalidateByKey)
	op.Keys = keys
	_, err := e.driver.Submit(ctx, op)
	return err
}

// InvalidateAll removes every entry in the cache.
func (e *Engine) InvalidateAll(ctx context.Context) error {
	_, err := e.driver.Submit(ctx, queue.NewOp(queue.InvalidateAll))
	return err
}

// Flush blocks until every Op submitted before this call has been
// executed, by riding the barrier GetKeys forces on the coalescer.
func (e *Engine) Flush(ctx context.Context) error {
	_, err := e.driver.Submit(ctx, queue.NewOp(queue.GetKeys))
	return err
}

// Vacuum deletes every expired entry and reclaims the space bbolt's free
// list has not returned to the filesystem.
func (e *Engine) Vacuum(ctx context.Context) error {
	_, err := e.driver.Submit(ctx, queue.NewOp(queue.Vacuum))
	return err
}

// pendingOpsReporter is implemented by *storage.Driver. Kept as an
// unexported optional interface so Submitter stays narrow for tests.
type pendingOpsReporter interface {
	PendingOps() int
}

// PendingOps reports how many submitted operations are still awaiting a
// result, for metrics.Collector. Returns 0 if the underlying Submitter
// doesn't track this (e.g. a test fake).
func (e *Engine) PendingOps() int {
	if r, ok := e.driver.(pendingOpsReporter); ok {
		return r.PendingOps()
	}
	return 0
}
