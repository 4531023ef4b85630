// Package eventq provides a bounded, thread-safe FIFO event queue for
// marshaling named events from producer threads (a view's background thread,
// a websocket read loop) to a single consumer, typically the host
// application's main loop. Producers post without blocking; the consumer
// drains in batches and dispatches to registered callbacks.
//
// Files by concern:
//
//   - queue.go: Queue type, construction, posting, size/stats/clear.
//   - drain.go: snapshot drain and isolated callback dispatch.
package eventq

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxQueue is the queue capacity applied when New receives max <= 0.
const DefaultMaxQueue = 1024

// Event is one queued (name, args, fields) tuple. Immutable after posting;
// FIFO order within the queue is the only ordering guarantee.
type Event struct {
	Name   string
	Args   []any
	Fields map[string]any
}

// Handler processes one event during a drain. A returned error (or a panic)
// is logged and routed to the per-name ErrorHandler, if any; it never aborts
// the drain.
type Handler func(args []any, fields map[string]any) error

// ErrorHandler receives a handler failure together with the original payload.
type ErrorHandler func(err error, args []any, fields map[string]any)

// Stats is a point-in-time snapshot of queue state and counters.
type Stats struct {
	QueueSize                int
	Capacity                 int
	RegisteredCallbacks      int
	RegisteredErrorCallbacks int
	Posted                   uint64
	Dropped                  uint64
	Processed                uint64
	Unhandled                uint64
}

type registration struct {
	h   Handler
	seq uint64
}

type errRegistration struct {
	h   ErrorHandler
	seq uint64
}

// Queue is a bounded FIFO of events with a name-keyed callback registry.
// Post is safe from any goroutine; Drain must only be called from the single
// consumer. Registration is conventionally consumer-side, but the lock makes
// concurrent misuse safe rather than corrupting.
type Queue struct {
	mu          sync.Mutex
	events      []Event
	max         int
	handlers    map[string]registration
	errHandlers map[string]errRegistration
	seq         uint64

	posted    uint64
	dropped   uint64
	processed uint64
	unhandled uint64

	log zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger installs a structured logger. Default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// New constructs a queue with the given capacity. max <= 0 applies
// DefaultMaxQueue.
func New(max int, opts ...Option) *Queue {
	if max <= 0 {
		max = DefaultMaxQueue
	}
	q := &Queue{
		max:         max,
		handlers:    make(map[string]registration),
		errHandlers: make(map[string]errRegistration),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Post enqueues a named event with positional payload. It never blocks: when
// the queue is full the event is dropped and Post returns false. Safe to call
// concurrently from any goroutine, including the consumer.
func (q *Queue) Post(name string, args ...any) bool {
	return q.PostEvent(Event{Name: name, Args: args})
}

// PostEvent enqueues a fully-formed event through the same admission path as
// Post.
func (q *Queue) PostEvent(ev Event) bool {
	q.mu.Lock()
	if len(q.events) >= q.max {
		q.dropped++
		q.mu.Unlock()
		q.log.Debug().Str("event", ev.Name).Msg("queue full, event dropped")
		return false
	}
	q.events = append(q.events, ev)
	q.posted++
	q.mu.Unlock()
	return true
}

// Register installs the handler for name, replacing any previous one. The
// returned func removes the registration, but only while it is still the
// current one, so a later re-registration is never clobbered.
func (q *Queue) Register(name string, h Handler) (unregister func()) {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.handlers[name] = registration{h: h, seq: seq}
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		if r, ok := q.handlers[name]; ok && r.seq == seq {
			delete(q.handlers, name)
		}
		q.mu.Unlock()
	}
}

// RegisterError installs the error handler for name, replacing any previous
// one. Same unregister contract as Register.
func (q *Queue) RegisterError(name string, h ErrorHandler) (unregister func()) {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.errHandlers[name] = errRegistration{h: h, seq: seq}
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		if r, ok := q.errHandlers[name]; ok && r.seq == seq {
			delete(q.errHandlers, name)
		}
		q.mu.Unlock()
	}
}

// Clear drops all queued events without dispatching and returns how many
// were discarded.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.events)
	q.events = nil
	q.mu.Unlock()
	return n
}

// Size returns the current number of queued events. Never exceeds the
// configured capacity.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Stats returns a snapshot of queue state and lifetime counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		QueueSize:                len(q.events),
		Capacity:                 q.max,
		RegisteredCallbacks:      len(q.handlers),
		RegisteredErrorCallbacks: len(q.errHandlers),
		Posted:                   q.posted,
		Dropped:                  q.dropped,
		Processed:                q.processed,
		Unhandled:                q.unhandled,
	}
}
