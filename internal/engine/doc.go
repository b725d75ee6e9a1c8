// Package engine implements the event lifecycle engine.
//
// The engine turns "problem occurred" and "problem solved" evaluations from
// monitoring counters into a persisted history of events, one open event per
// OCID at most.
//
// ARCHITECTURE:
//
// Single-Writer Call Loop:
// Every mutating call (occurred, solved, bulk administrative actions) is
// wrapped into a call and appended to a FIFO queue. Engine.Run drains the
// queue in one goroutine, so exactly one logical mutation touches the store
// at a time and the in-memory caches never race with it.
//
// Call Processing Flow:
//  1. Caller submits a call and blocks on its result
//  2. Run dequeues calls one at a time
//  3. The first call bootstraps the cache from the store
//  4. Each call runs inside one store transaction with a cache journal
//  5. Commit applies store, cache and deferred side effects; an error
//     rolls all of them back
//
// Repeated occurrences of an open event are buffered in the cache and
// written behind by a flush timer that runs beside the loop.
//
// Side effects (task hooks, auto-solve timers) run only after commit and
// never block the loop.
package engine
