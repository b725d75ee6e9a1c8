package testutil

import (
	"sort"
	"sync"
	"time"
)

// FixedClock is a manually driven clock for tests and scenarios.
//
// Now returns the current fixed time. AfterFunc callbacks never fire on
// their own: Advance moves the time forward and runs every callback that
// became due, in due order, on the caller's goroutine.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []timer
	seq    int
}

type timer struct {
	due time.Time
	seq int
	f   func()
}

// NewFixedClock creates a clock stopped at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the clock's time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *FixedClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.timers = append(c.timers, timer{due: c.now.Add(d), seq: c.seq, f: f})
}

// Pending returns the number of timers that have not fired yet.
func (c *FixedClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d and fires due timers.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := c.takeDue()
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Set moves the clock to t, which may be in the past, and fires due timers.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.takeDue()
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// takeDue removes and returns due timers. Caller holds mu.
func (c *FixedClock) takeDue() []timer {
	var due, rest []timer
	for _, t := range c.timers {
		if !t.due.After(c.now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest

	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].seq < due[j].seq
	})
	return due
}
