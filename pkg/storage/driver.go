// Package storage is the single-writer embedded-database driver: the
// only code in the module that opens a transaction. Every mutation and
// read is funneled through one goroutine so the coalescer's reordering
// rule maps onto a real execution order, grounded on the batching
// writer-transaction design etcd's storage backend uses over bbolt and
// on a bucket-per-entity layout for the database's top-level buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/cipher"
	"github.com/reactiveui/akavache-go/pkg/clock"
	"github.com/reactiveui/akavache-go/pkg/metrics"
	"github.com/reactiveui/akavache-go/pkg/queue"
)

const (
	// defaultIdleInterval is how long the writer waits after the first op
	// of a batch arrives before draining, grounded on etcd's
	// defaultBatchInterval (100ms) for its bbolt-backed backend.
	defaultIdleInterval = 2 * time.Second
	// defaultChunkSize bounds how many ops one drain absorbs before it
	// stops accepting more and executes, grounded on etcd's
	// defaultBatchLimit.
	defaultChunkSize = 64

	// maxTxAttempts bounds how many times drain retries one batch's
	// transaction after a transient lock/timeout error before giving up
	// and failing every group in the batch.
	maxTxAttempts = 3
	// txRetryBackoff is how long drain waits between transaction retries.
	txRetryBackoff = 20 * time.Millisecond
)

// Options configures a Driver.
type Options struct {
	// Path is the database file. "" opens an ephemeral in-memory-backed
	// file in os.TempDir, used for the InMemory cache instance.
	Path string

	// Instance labels this Driver's metrics (e.g. "user_account",
	// "secure"). Empty is a valid label for a Driver opened directly
	// rather than through an akavache.Engine.
	Instance string

	IdleInterval time.Duration
	ChunkSize    int

	Clock  clock.Clock
	Cipher cipher.Cipher // nil disables encryption

	Logger zerolog.Logger
}

// Driver owns one bbolt database and the single goroutine that writes to
// it. Every caller-facing method funnels through Submit, which enqueues an
// Op and waits on its Sink.
type Driver struct {
	db     *bolt.DB
	path   string
	memory bool

	clock  clock.Clock
	cipher cipher.Cipher
	log    zerolog.Logger

	idleInterval time.Duration
	chunkSize    int
	coalescer    *queue.Coalescer

	submit  chan *queue.Op
	pending atomic.Int64
	done    chan struct{}
	closed  chan struct{}

	installationID string
	instance       string

	// updateFn runs fn inside one bbolt writable transaction. Set by Open
	// to call d.db.Update on the current handle; overridden in tests to inject transient
	// transaction failures without a real lock-contention race.
	updateFn func(fn func(tx *bolt.Tx) error) error
}

// Open creates or opens the database file at opts.Path and starts the
// writer goroutine.
func Open(opts Options) (*Driver, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}

	path := opts.Path
	memory := path == ""
	if memory {
		f, err := os.CreateTemp("", "akavache-inmemory-*.db")
		if err != nil {
			return nil, akerrors.Wrap(akerrors.Storage, err, "storage: failed to create in-memory backing file")
		}
		path = f.Name()
		_ = f.Close()
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, akerrors.Wrap(akerrors.Storage, err, "storage: failed to create data directory %s", dir)
		}
	}

	// Timeout bounds how long Open waits for another process's advisory
	// file lock before failing, rather than blocking forever.
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, akerrors.Wrap(akerrors.Storage, err, "storage: failed to open database at %s", path)
	}

	var installationID string
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketElements, bucketByType, bucketByExpiration, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaSchemaVersionKey) == nil {
			if err := meta.Put(metaSchemaVersionKey, schemaVersion); err != nil {
				return err
			}
		}
		if id := meta.Get(metaInstallationIDKey); id != nil {
			installationID = string(id)
		} else {
			installationID = uuid.NewString()
			if err := meta.Put(metaInstallationIDKey, []byte(installationID)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, akerrors.Wrap(akerrors.Storage, err, "storage: failed to initialize schema")
	}

	d := &Driver{
		db:             db,
		path:           path,
		memory:         memory,
		clock:          opts.Clock,
		cipher:         opts.Cipher,
		log:            opts.Logger.With().Str("component", "storage").Logger(),
		idleInterval:   opts.IdleInterval,
		chunkSize:      opts.ChunkSize,
		coalescer:      queue.NewCoalescer(),
		submit:         make(chan *queue.Op),
		done:           make(chan struct{}),
		closed:         make(chan struct{}),
		installationID: installationID,
		instance:       opts.Instance,
	}
	// Resolve d.db at call time: Defrag swaps in a reopened handle.
	d.updateFn = func(fn func(tx *bolt.Tx) error) error { return d.db.Update(fn) }
	go d.writerLoop()
	return d, nil
}

// Submit enqueues op and waits for it to be coalesced, executed, and
// resolved, or for ctx to be cancelled. Cancellation detaches this caller
// only; the op remains in flight and other waiters coalesced with it are
// unaffected.
func (d *Driver) Submit(ctx context.Context, op *queue.Op) (queue.Result, error) {
	select {
	case d.submit <- op:
		d.pending.Add(1)
	case <-ctx.Done():
		return queue.Result{}, ctx.Err()
	case <-d.done:
		return queue.Result{}, akerrors.ErrDisposed
	}
	defer d.pending.Add(-1)
	return op.Sink.Wait(ctx)
}

// InstallationID returns the UUID stamped into this database file's meta
// bucket the first time it was opened, stable for the life of the file.
func (d *Driver) InstallationID() string {
	return d.installationID
}

// PendingOps reports how many ops the writer has accepted whose callers
// are still waiting on a result: in the batch being collected, or awaiting
// the drain's transaction to commit. An op still blocked in Submit's send
// is not counted.
func (d *Driver) PendingOps() int {
	return int(d.pending.Load())
}

// Shutdown stops accepting new submissions, drains and executes whatever
// is already queued, and closes the database.
func (d *Driver) Shutdown(ctx context.Context) error {
	close(d.done)
	select {
	case <-d.closed:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := d.db.Close()
	if d.memory {
		_ = os.Remove(d.path)
	}
	return err
}

// writerLoop is the single goroutine that ever touches d.db. It batches
// ops arriving within idleInterval of the first one (bounded by
// chunkSize), coalesces them, and executes the result as one transaction.
func (d *Driver) writerLoop() {
	defer close(d.closed)

	for {
		var batch []*queue.Op

		select {
		case op := <-d.submit:
			batch = append(batch, op)
		case <-d.done:
			return
		}

		timer := time.NewTimer(d.idleInterval)
	collect:
		for len(batch) < d.chunkSize {
			select {
			case op := <-d.submit:
				batch = append(batch, op)
			case <-timer.C:
				break collect
			case <-d.done:
				timer.Stop()
				d.drain(batch)
				return
			}
		}
		timer.Stop()

		d.drain(batch)
	}
}

// drain coalesces batch and executes the resulting groups inside one
// bbolt transaction, delivering a result to every source sink.
func (d *Driver) drain(batch []*queue.Op) {
	if len(batch) == 0 {
		return
	}
	timer := metrics.NewTimer()
	groups := d.coalescer.Coalesce(batch)
	metrics.BatchSize.WithLabelValues(d.instance).Observe(float64(len(batch)))
	metrics.GroupsPerBatch.WithLabelValues(d.instance).Observe(float64(len(groups)))

	var results map[*queue.Group]opResult
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = d.updateFn(func(tx *bolt.Tx) error {
			r, err := d.execute(tx, groups)
			results = r
			return err
		})
		if err == nil || !isTransientTxErr(err) {
			break
		}
		d.log.Warn().Err(err).Int("attempt", attempt).Int("ops", len(batch)).Msg("transaction failed transiently, retrying")
		if attempt < maxTxAttempts {
			time.Sleep(txRetryBackoff)
		}
	}
	timer.ObserveDurationVec(metrics.DrainDuration, d.instance)

	if err != nil {
		wrapped := akerrors.Wrap(akerrors.Storage, err, "storage: transaction failed")
		d.log.Error().Err(err).Int("ops", len(batch)).Msg("batch transaction failed")
		for _, g := range groups {
			metrics.StorageOpsTotal.WithLabelValues(d.instance, g.Kind.String(), "error").Inc()
			g.Fail(wrapped)
		}
		return
	}

	for _, g := range groups {
		metrics.StorageOpsTotal.WithLabelValues(d.instance, g.Kind.String(), "success").Inc()
		switch g.Kind {
		case queue.GetKeys:
			g.DeliverKeys(results[g].keys)
		case queue.BulkSelectByKey, queue.BulkSelectByType:
			g.Deliver(results[g].elements)
		case queue.Vacuum:
			// Defrag rewrites the whole file; run it here, still on the
			// single writer goroutine, after the expiry-sweep transaction
			// above has committed.
			if err := d.Defrag(); err != nil {
				d.log.Error().Err(err).Msg("vacuum: defrag failed")
				g.Fail(akerrors.Wrap(akerrors.Storage, err, "storage: vacuum failed"))
				continue
			}
			g.Succeed()
		default:
			g.Succeed()
		}
	}

	d.log.Debug().Int("ops", len(batch)).Int("groups", len(groups)).Msg("batch committed")
}

// isTransientTxErr reports whether err is worth retrying the same
// transaction for: bbolt's own lock-acquire timeout. Anything else
// (corruption, invalid bucket, a failing op handler) is permanent and
// retrying it would just fail the same way three times.
func isTransientTxErr(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}
