// Package timer schedules periodic event-pump ticks on behalf of a host
// application. A Backend encapsulates how the host achieves "call me every N
// milliseconds without blocking your own loop"; a Registry picks the best
// available backend by priority; an EventTimer drives a polled target through
// its Idle/Running/Stopped lifecycle.
package timer

import "time"

// Handle is the opaque token a Backend returns from Start and accepts in
// Stop.
type Handle any

// Backend is a strategy for getting a callback invoked periodically on a
// specific host's native loop.
type Backend interface {
	// Available reports whether the backend can run in the current
	// environment. Must be cheap and side-effect free.
	Available() bool
	// Start arms a periodic invocation of tick at the given interval and
	// returns an opaque handle for Stop.
	Start(interval time.Duration, tick func()) (Handle, error)
	// Stop disarms a handle previously returned by Start. Idempotent;
	// nil or foreign handles are ignored. Must be safe to call while a
	// tick is in flight, without blocking unboundedly.
	Stop(h Handle)
}
