package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/cache"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// DefaultFlushInterval is how often buffered repeats are written behind.
const DefaultFlushInterval = 15 * time.Second

// Backpressure reporting: once the queue is deeper than queueWarnDepth,
// every queueWarnEvery-th enqueued call logs a warning.
const (
	queueWarnDepth = 100
	queueWarnEvery = 10
)

// TaskRunner starts a task for an event transition. Calls are
// fire-and-forget: the engine logs a returned error and moves on.
type TaskRunner interface {
	RunTask(ctx context.Context, taskID int64, vars map[string]string) error
}

// Engine is the single-writer event lifecycle engine.
//
// Thread-safety model:
//   - Occurred, Solved, Transact and friends: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - FlushRepeats: safe from any goroutine; also driven by Run's ticker
type Engine struct {
	store         *store.Store
	cache         *cache.Cache
	queue         *callQueue
	clock         Clock
	loc           *time.Location
	tasks         TaskRunner
	batchIDs      BatchIDGenerator
	flushInterval time.Duration

	// Touched only by the Run goroutine.
	bootstrapped bool

	hooks sync.WaitGroup
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the clock used for expiry checks and auto-solve timers.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocation sets the time zone that time-of-day intervals refer to.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithTaskRunner sets the runner for problem/solved task hooks.
func WithTaskRunner(r TaskRunner) Option {
	return func(e *Engine) {
		e.tasks = r
	}
}

// WithBatchIDs sets the generator for transaction batch IDs.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.batchIDs = g
	}
}

// WithFlushInterval sets the repeat flush period. Zero disables the ticker;
// repeats are then written only by FlushRepeats and on shutdown.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.flushInterval = d
	}
}

// New creates an Engine over the given store. The cache stays empty until
// the first call is processed by Run.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		cache:         cache.New(),
		queue:         newCallQueue(),
		clock:         SystemClock{},
		loc:           time.Local,
		batchIDs:      UUIDv7Generator{},
		flushInterval: DefaultFlushInterval,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Location returns the time zone of time-of-day intervals.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Snapshot returns a copy of the engine's cache state.
func (e *Engine) Snapshot() cache.Snapshot {
	return e.cache.Snapshot()
}

// QueueLen returns the number of calls waiting for the serializer.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// WaitHooks blocks until every task hook started so far has returned.
func (e *Engine) WaitHooks() {
	e.hooks.Wait()
}

// Run starts the single-writer call loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drained.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	flushCtx, stopFlush := context.WithCancel(ctx)
	var flusher sync.WaitGroup
	if e.flushInterval > 0 {
		flusher.Add(1)
		go func() {
			defer flusher.Done()
			e.flushLoop(flushCtx)
		}()
	}
	defer func() {
		stopFlush()
		flusher.Wait()
		// Last chance for buffered repeats.
		if _, err := e.FlushRepeats(context.WithoutCancel(ctx)); err != nil {
			slog.Error("final repeat flush failed", "error", err)
		}
	}()

	for {
		if c, ok := e.queue.TryDequeue(); ok {
			e.process(c)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.failPending(ctx.Err())
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Calls already queued are still processed;
// later submissions fail with ErrStopped.
func (e *Engine) Stop() {
	e.queue.Close()
}

// failPending answers every queued call with err.
func (e *Engine) failPending(err error) {
	for {
		c, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		c.done <- err
	}
}

// process runs one call.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(c *call) {
	if err := c.ctx.Err(); err != nil {
		slog.Debug("skipping cancelled call", "call", c.name, "error", err)
		c.done <- err
		return
	}

	if !e.bootstrapped {
		if err := e.bootstrap(c.ctx); err != nil {
			slog.Error("cache bootstrap failed", "call", c.name, "error", err)
			c.done <- &RuntimeError{
				Code:    ErrCodeBootstrapFailed,
				Message: "rebuild cache from store",
				Err:     err,
			}
			return
		}
		e.bootstrapped = true
	}

	c.done <- c.fn(c.ctx)
}

// bootstrap deletes expired disable rows and loads the open and disabled
// projections from the store.
func (e *Engine) bootstrap(ctx context.Context) error {
	var (
		open     []store.Event
		disabled []store.DisabledEvent
		expired  int64
	)
	err := e.store.WithTx(ctx, e.batchIDs.Generate(), func(q *store.Queries) error {
		var err error
		if expired, err = q.DeleteExpiredDisabledEvents(ctx, e.clock.Now()); err != nil {
			return err
		}
		if open, err = q.ReadOpenEvents(ctx); err != nil {
			return err
		}
		disabled, err = q.ReadDisabledEvents(ctx)
		return err
	})
	if err != nil {
		return err
	}

	e.cache.Load(open, disabled)
	slog.Info("cache bootstrapped",
		"open_events", len(open),
		"disabled", len(disabled),
		"expired_removed", expired,
	)
	return nil
}

// submit enqueues fn and waits for its result.
func (e *Engine) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	c := &call{ctx: ctx, name: name, fn: fn, done: make(chan error, 1)}

	depth, ok := e.queue.Enqueue(c)
	if !ok {
		return ErrStopped
	}
	if depth > queueWarnDepth && depth%queueWarnEvery == 0 {
		slog.Warn("write queue is growing", "depth", depth, "call", name)
	}

	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transact runs fn in the serializer inside one store transaction.
// If fn returns an error the store transaction and every cache mutation made
// through tx are rolled back and no deferred side effect runs.
func (e *Engine) Transact(ctx context.Context, name string, fn func(ctx context.Context, tx *Tx) error) error {
	return e.submit(ctx, name, func(ctx context.Context) error {
		return e.transact(ctx, name, fn)
	})
}

// transact must run on the Run goroutine.
func (e *Engine) transact(ctx context.Context, name string, fn func(ctx context.Context, tx *Tx) error) error {
	batchID := e.batchIDs.Generate()
	tx := &Tx{e: e, batchID: batchID, journal: cache.NewJournal()}

	err := e.store.WithTx(ctx, batchID, func(q *store.Queries) error {
		tx.q = q
		return fn(ctx, tx)
	})
	if err != nil {
		tx.journal.Rollback()
		slog.Debug("transaction rolled back", "call", name, "batch", batchID, "error", err)
		return err
	}

	tx.journal.Commit()
	for _, f := range tx.afterCommit {
		f()
	}
	return nil
}

// runTask starts a task hook in its own goroutine.
func (e *Engine) runTask(taskID int64, vars map[string]string) {
	if e.tasks == nil || taskID == 0 {
		return
	}

	e.hooks.Add(1)
	go func() {
		defer e.hooks.Done()
		if err := e.tasks.RunTask(context.Background(), taskID, vars); err != nil {
			slog.Error("task hook failed",
				"task_id", taskID,
				"ocid", vars["OCID"],
				"action", vars["ACTION"],
				"error", err,
			)
		}
	}()
}

// Enable removes suppression for ocids in the background. Used for expiry
// found outside a transaction; errors are logged.
func (e *Engine) Enable(ocids ...int64) {
	if len(ocids) == 0 {
		return
	}
	go func() {
		err := e.Transact(context.Background(), "enable", func(ctx context.Context, tx *Tx) error {
			for _, ocid := range ocids {
				if _, err := tx.Enable(ctx, ocid); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("enable events failed", "ocids", fmt.Sprint(ocids), "error", err)
		}
	}()
}
