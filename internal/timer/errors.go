package timer

// noBackendError signals that no registered backend reported available at
// selection time. Surfaced from Start so hosts see it as a configuration
// problem, not a runtime fault.
type noBackendError struct{}

func (noBackendError) Error() string { return "no timer backend available" }

// IsNoBackendAvailable reports whether err means auto-selection found no
// usable backend.
func IsNoBackendAvailable(err error) bool {
	_, ok := err.(noBackendError)
	return ok
}

// timerStoppedError signals Start on a timer that has already reached the
// terminal Stopped state.
type timerStoppedError struct{}

func (timerStoppedError) Error() string { return "event timer is stopped; construct a new one to restart" }

// IsTimerStopped reports whether err indicates a start attempt on a stopped
// timer.
func IsTimerStopped(err error) bool {
	_, ok := err.(timerStoppedError)
	return ok
}
