// Package akavache is the top-level facade: it glues the storage driver
// and the blob-cache engine together behind one Engine per named cache
// instance, and owns that Engine's
// Open -> ShuttingDown -> Closed lifecycle: a stopCh a background
// goroutine selects on alongside its ticker, generalized to three
// observable states since an engine mid-shutdown still has to answer
// in-flight callers truthfully.
package akavache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/blobcache"
	"github.com/reactiveui/akavache-go/pkg/cipher"
	"github.com/reactiveui/akavache-go/pkg/clock"
	"github.com/reactiveui/akavache-go/pkg/diagnostic"
	"github.com/reactiveui/akavache-go/pkg/log"
	"github.com/reactiveui/akavache-go/pkg/metrics"
	"github.com/reactiveui/akavache-go/pkg/model"
	"github.com/reactiveui/akavache-go/pkg/serializer"
	"github.com/reactiveui/akavache-go/pkg/storage"
)

type state int32

const (
	stateOpen state = iota
	stateShuttingDown
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateShuttingDown:
		return "shutting_down"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config parametrizes Open. Path and Cipher are the only fields most
// callers set directly; the four named instances built by OpenCaches
// derive their own Config from a base one.
type Config struct {
	// Path is the database file. Empty opens an ephemeral in-memory-backed
	// instance (bbolt has no true in-memory mode; Open creates a temp file
	// and removes it on Close, documented in DESIGN.md).
	Path string

	Cipher     cipher.Cipher
	Clock      clock.Clock
	Serializer serializer.Serializer

	IdleInterval time.Duration
	ChunkSize    int

	// VacuumInterval, if positive, starts a background ticker that calls
	// Vacuum on this interval. Zero (the default) disables it; an operator
	// or the CLI's "vacuum" subcommand can still call Vacuum directly.
	VacuumInterval time.Duration

	// Diagnostics, if set, receives events for operations worth observing
	// independently of the returned error (most notably a fetch whose
	// follow-up store failed).
	Diagnostics *diagnostic.Sink

	Logger zerolog.Logger
}

// Engine is one opened cache instance: the blob-cache engine plus the
// lifecycle state machine and optional background vacuum ticker.
type Engine struct {
	*blobcache.Engine

	name   string
	driver *storage.Driver
	state  atomic.Int32

	diagnostics *diagnostic.Sink
	serializer  serializer.Serializer

	vacuumStop chan struct{}
	vacuumDone chan struct{}

	log zerolog.Logger
}

// Open builds an Engine from cfg: the storage driver, the blob-cache
// engine over it, and (if cfg.VacuumInterval > 0) a background vacuum
// ticker. The returned Engine starts in the Open state.
func Open(name string, cfg Config) (*Engine, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Serializer == nil {
		cfg.Serializer = serializer.NewJSON()
	}

	driver, err := storage.Open(storage.Options{
		Path:         cfg.Path,
		Instance:     name,
		IdleInterval: cfg.IdleInterval,
		ChunkSize:    cfg.ChunkSize,
		Clock:        cfg.Clock,
		Cipher:       cfg.Cipher,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Engine:      blobcache.New(driver, cfg.Clock),
		name:        name,
		driver:      driver,
		diagnostics: cfg.Diagnostics,
		serializer:  cfg.Serializer,
		log:         log.WithEngine(name),
	}

	if cfg.VacuumInterval > 0 {
		e.startVacuumTicker(cfg.VacuumInterval)
	}

	metrics.RegisterComponent("storage", true, "open")
	metrics.RegisterComponent(name, true, "open")

	return e, nil
}

// Name returns the instance name Open was called with (e.g.
// "user_account", "secure").
func (e *Engine) Name() string { return e.name }

// State reports the engine's current lifecycle state for monitoring.
func (e *Engine) State() string {
	return state(e.state.Load()).String()
}

// Serializer returns the Serializer this instance was configured with,
// for callers building an objectcache.Cache[T] over it.
func (e *Engine) Serializer() serializer.Serializer { return e.serializer }

// Diagnostics returns the configured diagnostic sink, or nil.
func (e *Engine) Diagnostics() *diagnostic.Sink { return e.diagnostics }

func (e *Engine) checkOpen() error {
	if state(e.state.Load()) != stateOpen {
		return akerrors.Wrap(akerrors.Disposed, akerrors.ErrDisposed, "akavache: engine %q is %s", e.name, e.State())
	}
	return nil
}

// Insert overrides blobcache.Engine.Insert to reject calls once shutdown
// has begun, publishing a diagnostic event for the call (carrying its
// error, if any) if a sink is set.
func (e *Engine) Insert(ctx context.Context, key string, data []byte, expiration time.Time) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	t := metrics.NewTimer()
	err := e.Engine.Insert(ctx, key, data, expiration)
	t.ObserveDurationVec(metrics.InsertDuration, e.name)
	e.publish(diagnostic.KindInsert, key, "", err)
	return err
}

// InsertMany overrides blobcache.Engine.InsertMany the same way.
func (e *Engine) InsertMany(ctx context.Context, elements []model.CacheElement) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	t := metrics.NewTimer()
	err := e.Engine.InsertMany(ctx, elements)
	t.ObserveDurationVec(metrics.InsertDuration, e.name)
	e.publish(diagnostic.KindInsert, "", "", err)
	return err
}

// Get overrides blobcache.Engine.Get the same way.
func (e *Engine) Get(ctx context.Context, key string) ([]byte, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	t := metrics.NewTimer()
	v, err := e.Engine.Get(ctx, key)
	t.ObserveDurationVec(metrics.GetDuration, e.name)
	e.publish(diagnostic.KindGet, key, "", err)
	return v, err
}

// Invalidate overrides blobcache.Engine.Invalidate the same way.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	t := metrics.NewTimer()
	err := e.Engine.Invalidate(ctx, key)
	t.ObserveDurationVec(metrics.InvalidateDuration, e.name)
	e.publish(diagnostic.KindInvalidate, key, "", err)
	return err
}

// InvalidateAll overrides blobcache.Engine.InvalidateAll the same way.
func (e *Engine) InvalidateAll(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	t := metrics.NewTimer()
	err := e.Engine.InvalidateAll(ctx)
	t.ObserveDurationVec(metrics.InvalidateDuration, e.name)
	e.publish(diagnostic.KindInvalidateAll, "", "", err)
	return err
}

// Vacuum overrides blobcache.Engine.Vacuum the same way.
func (e *Engine) Vacuum(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	t := metrics.NewTimer()
	err := e.Engine.Vacuum(ctx)
	t.ObserveDurationVec(metrics.VacuumDuration, e.name)
	e.publish(diagnostic.KindVacuum, "", "", err)
	return err
}

func (e *Engine) publish(kind diagnostic.Kind, key, typeName string, err error) {
	if e.diagnostics == nil {
		return
	}
	e.diagnostics.Publish(diagnostic.Event{Kind: kind, Key: key, TypeName: typeName, Err: err})
}

func (e *Engine) startVacuumTicker(interval time.Duration) {
	e.vacuumStop = make(chan struct{})
	e.vacuumDone = make(chan struct{})

	go func() {
		defer close(e.vacuumDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := e.Vacuum(ctx); err != nil {
					e.log.Warn().Err(err).Msg("background vacuum failed")
				}
				cancel()
			case <-e.vacuumStop:
				return
			}
		}
	}()
}

// Close transitions Open -> ShuttingDown -> Closed: it stops the
// background vacuum ticker (if any), waits for in-flight operations to
// drain, and closes the underlying database.
func (e *Engine) Close(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(stateOpen), int32(stateShuttingDown)) {
		return nil // already shutting down or closed
	}

	if e.vacuumStop != nil {
		close(e.vacuumStop)
		<-e.vacuumDone
	}

	err := e.driver.Shutdown(ctx)
	e.state.Store(int32(stateClosed))
	metrics.UpdateComponent(e.name, false, "closed")
	return err
}
