package replication

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

// DefaultBuffer is the number of batches Async queues before dropping.
const DefaultBuffer = 1024

// Sink delivers one batch to a secondary store.
type Sink interface {
	Send(ctx context.Context, b store.Batch) error
	Close() error
}

// Async is a store.Replicator that delivers batches to its sinks from a
// background goroutine.
type Async struct {
	sinks   []Sink
	batches chan store.Batch
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped int64

	done chan struct{}
}

// AsyncOption configures an Async replicator.
type AsyncOption func(*Async)

// WithBuffer sets the queue capacity.
func WithBuffer(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.batches = make(chan store.Batch, n)
		}
	}
}

// WithSendTimeout bounds each Sink.Send call.
func WithSendTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		a.timeout = d
	}
}

// NewAsync starts the delivery goroutine for sinks.
func NewAsync(sinks []Sink, opts ...AsyncOption) *Async {
	a := &Async{
		sinks:   sinks,
		batches: make(chan store.Batch, DefaultBuffer),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	go a.loop()
	return a
}

// Replicate queues b for delivery. It never blocks.
func (a *Async) Replicate(b store.Batch) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.dropped++
		slog.Warn("replication closed, dropping batch", "batch_id", b.ID)
		return
	}

	select {
	case a.batches <- b:
	default:
		a.dropped++
		slog.Warn("replication buffer full, dropping batch",
			"batch_id", b.ID,
			"mutations", len(b.Mutations),
			"dropped_total", a.dropped,
		)
	}
}

// Dropped returns the number of batches that were never queued.
func (a *Async) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting batches, delivers what is queued and closes the sinks.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.batches)
	a.mu.Unlock()

	<-a.done

	var errs []error
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Async) loop() {
	defer close(a.done)

	for b := range a.batches {
		for _, s := range a.sinks {
			a.send(s, b)
		}
	}
}

func (a *Async) send(s Sink, b store.Batch) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := s.Send(ctx, b); err != nil {
		slog.Error("replicate batch",
			"batch_id", b.ID,
			"mutations", len(b.Mutations),
			"error", err,
		)
	}
}
