package eventq

import (
	"fmt"
	"runtime/debug"
)

// Drain removes and dispatches every event queued at the moment of the call.
// It must only be called from the designated consumer. The backlog is swapped
// out under the lock and dispatched outside it, so events posted during the
// drain land in the next call. Returns the number of events dequeued, whether
// or not a handler existed for them.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	for _, ev := range batch {
		q.dispatch(ev)
	}

	q.mu.Lock()
	q.processed += uint64(len(batch))
	q.mu.Unlock()
	return len(batch)
}

func (q *Queue) dispatch(ev Event) {
	q.mu.Lock()
	reg, ok := q.handlers[ev.Name]
	errReg, hasErrHandler := q.errHandlers[ev.Name]
	q.mu.Unlock()

	if !ok {
		q.mu.Lock()
		q.unhandled++
		q.mu.Unlock()
		q.log.Warn().Str("event", ev.Name).Msg("no handler registered")
		return
	}

	err := q.invoke(reg.h, ev)
	if err == nil {
		return
	}
	q.log.Error().Err(err).Str("event", ev.Name).Msg("event handler failed")
	if hasErrHandler {
		q.invokeErrHandler(errReg.h, err, ev)
	}
}

// invoke runs a handler, converting a panic into an error so one bad handler
// cannot take down the consumer's loop.
func (q *Queue) invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			q.log.Error().Str("event", ev.Name).Bytes("stack", debug.Stack()).Msg("event handler panicked")
		}
	}()
	return h(ev.Args, ev.Fields)
}

// invokeErrHandler runs an error handler; its own failure is swallowed so it
// can never escalate past the drain loop.
func (q *Queue) invokeErrHandler(h ErrorHandler, cause error, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("event", ev.Name).Interface("panic", r).Msg("error handler panicked")
		}
	}()
	h(cause, ev.Args, ev.Fields)
}
