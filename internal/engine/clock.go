package engine

import "time"

// Clock supplies wall time and delayed callbacks to the engine.
//
// The engine never calls time.Now directly: disable expiry, the
// disableUntil validation of bulk actions and auto-solve timers all go
// through the Clock so tests and scenarios can drive time explicitly.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine after d.
func (SystemClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
