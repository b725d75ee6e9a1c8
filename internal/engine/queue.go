package engine

import (
	"context"
	"sync"
)

// call is one unit of serialized work.
type call struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
	done chan error // buffered, size 1
}

// callQueue is a thread-safe FIFO queue for calls.
//
// The queue is unbounded: monitoring bursts must never block or drop
// evaluations. Depth is reported by Enqueue so the caller can surface
// backpressure.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type callQueue struct {
	mu     sync.Mutex
	calls  []*call
	closed bool
	signal chan struct{} // Signals call availability (buffered, size 1)
}

// newCallQueue creates an empty call queue.
func newCallQueue() *callQueue {
	return &callQueue{
		calls:  make([]*call, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a call to the back of the queue and returns the new depth.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(c *call) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}

	q.calls = append(q.calls, c)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return len(q.calls), true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (nil, false) if the queue is empty.
func (q *callQueue) TryDequeue() (*call, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.calls) == 0 {
		return nil, false
	}

	c := q.calls[0]

	// Nil out the slot so the backing array does not retain the call
	q.calls[0] = nil

	if len(q.calls) == 1 {
		q.calls = q.calls[:0]
	} else {
		q.calls = q.calls[1:]
	}

	return c, true
}

// Wait returns a channel that signals when calls may be available.
// The channel is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

// Drained reports whether the queue is closed and empty.
func (q *callQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.calls) == 0
}

// Close signals that no more calls will be enqueued.
// Calls already queued can still be dequeued.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
