package timer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTickInterval is applied when TimerConfig.Interval is unset. 16ms
// tracks a typical UI pump rate.
const DefaultTickInterval = 16 * time.Millisecond

// State is the lifecycle position of an EventTimer.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Target is the object an EventTimer polls on every tick. ProcessEvents
// drains whatever the target buffers (its event queue, a native message
// queue) and reports whether the target wants the timer to shut down.
type Target interface {
	ProcessEvents() bool
}

// Initializing is implemented by targets that build native resources on a
// background thread. While it reports true the tick is skipped entirely so a
// half-constructed resource is never touched from the pump.
type Initializing interface {
	Initializing() bool
}

// TimerConfig carries everything an EventTimer needs. Target is required.
// Backend, when set, wins over Registry auto-selection; otherwise Registry
// picks at Start time. Interval <= 0 applies DefaultTickInterval.
type TimerConfig struct {
	Target   Target
	Interval time.Duration
	Backend  Backend
	Registry *Registry
	Logger   zerolog.Logger
}

type callback struct {
	fn  func()
	seq uint64
}

// EventTimer invokes its target's ProcessEvents at a fixed interval through a
// backend, firing tick and close callbacks around it. The state machine is
// Idle -> Running -> Stopped, and Stopped is terminal: restarting means
// constructing a new timer.
type EventTimer struct {
	mu         sync.Mutex
	state      State
	cfg        TimerConfig
	backend    Backend
	handle     Handle
	interval   time.Duration
	onTick     []callback
	onClose    []callback
	seq        uint64
	closeFired bool
	log        zerolog.Logger
}

// NewEventTimer validates cfg and returns an idle timer.
func NewEventTimer(cfg TimerConfig) (*EventTimer, error) {
	if cfg.Target == nil {
		return nil, errors.New("timer target is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &EventTimer{
		cfg:      cfg,
		interval: interval,
		log:      cfg.Logger,
	}, nil
}

// Start transitions Idle -> Running: picks a backend (explicit instance
// first, else registry auto-selection) and arms it. Starting a running timer
// is a no-op; starting a stopped one fails with IsTimerStopped.
func (t *EventTimer) Start() error {
	t.mu.Lock()
	switch t.state {
	case StateRunning:
		t.mu.Unlock()
		return nil
	case StateStopped:
		t.mu.Unlock()
		return timerStoppedError{}
	}
	backend := t.cfg.Backend
	if backend == nil {
		if t.cfg.Registry == nil {
			t.mu.Unlock()
			return noBackendError{}
		}
		selected, err := t.cfg.Registry.Select()
		if err != nil {
			t.mu.Unlock()
			return err
		}
		backend = selected
	}
	if !backend.Available() {
		t.mu.Unlock()
		return noBackendError{}
	}
	// Flip to Running before arming so a backend that ticks immediately
	// finds a consistent state; the handle is recorded after.
	t.state = StateRunning
	t.mu.Unlock()

	handle, err := backend.Start(t.interval, t.tick)
	if err != nil {
		t.mu.Lock()
		if t.state == StateRunning {
			t.state = StateIdle
		}
		t.mu.Unlock()
		return fmt.Errorf("start timer backend: %w", err)
	}

	t.mu.Lock()
	if t.state != StateRunning {
		// Stopped while arming; disarm the fresh handle.
		t.mu.Unlock()
		backend.Stop(handle)
		return nil
	}
	t.backend = backend
	t.handle = handle
	t.mu.Unlock()
	t.log.Debug().Dur("interval", t.interval).Msg("event timer started")
	return nil
}

// Stop transitions Running -> Stopped and disarms the backend. Safe from any
// state: stopping an idle or already-stopped timer is a no-op.
func (t *EventTimer) Stop() {
	t.stop(false)
}

// stop optionally disarms the backend on a separate goroutine. The async
// path exists for self-stop from inside a tick, where joining the backend
// would wait on the very goroutine running the tick.
func (t *EventTimer) stop(fromTick bool) {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.state = StateStopped
	backend := t.backend
	handle := t.handle
	t.backend = nil
	t.handle = nil
	t.mu.Unlock()

	t.log.Debug().Msg("event timer stopped")
	if backend == nil {
		return
	}
	if fromTick {
		go backend.Stop(handle)
		return
	}
	backend.Stop(handle)
}

// State returns the current lifecycle state.
func (t *EventTimer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Running reports whether the timer is in the Running state.
func (t *EventTimer) Running() bool {
	return t.State() == StateRunning
}

// OnTick registers fn to run on every non-gated tick. The returned func
// removes the registration.
func (t *EventTimer) OnTick(fn func()) (remove func()) {
	return t.addCallback(&t.onTick, fn)
}

// OnClose registers fn to run exactly once when the target reports it should
// close. The returned func removes the registration.
func (t *EventTimer) OnClose(fn func()) (remove func()) {
	return t.addCallback(&t.onClose, fn)
}

func (t *EventTimer) addCallback(list *[]callback, fn func()) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	t.seq++
	seq := t.seq
	*list = append(*list, callback{fn: fn, seq: seq})
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		for i, cb := range *list {
			if cb.seq == seq {
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
	}
}

// tick runs once per backend interval. Sequence: skip entirely while the
// target is still initializing on a background thread; poll the target; on a
// close request fire close callbacks once and self-stop; finally run tick
// callbacks, each isolated so one failure cannot starve the next callback or
// the next tick.
func (t *EventTimer) tick() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	target := t.cfg.Target
	t.mu.Unlock()

	if g, ok := target.(Initializing); ok && g.Initializing() {
		return
	}

	if t.pollTarget(target) {
		t.fireCloseOnce()
		t.stop(true)
	}
	t.fireTicks()
}

// pollTarget invokes ProcessEvents with panic isolation; a panicking target
// is logged and treated as "keep running" rather than tearing down the pump.
func (t *EventTimer) pollTarget(target Target) (shouldClose bool) {
	defer func() {
		if r := recover(); r != nil {
			shouldClose = false
			t.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("target ProcessEvents panicked")
		}
	}()
	return target.ProcessEvents()
}

func (t *EventTimer) fireCloseOnce() {
	t.mu.Lock()
	if t.closeFired {
		t.mu.Unlock()
		return
	}
	t.closeFired = true
	cbs := make([]callback, len(t.onClose))
	copy(cbs, t.onClose)
	t.mu.Unlock()
	for _, cb := range cbs {
		t.safeInvoke(cb.fn, "close")
	}
}

func (t *EventTimer) fireTicks() {
	t.mu.Lock()
	cbs := make([]callback, len(t.onTick))
	copy(cbs, t.onTick)
	t.mu.Unlock()
	for _, cb := range cbs {
		t.safeInvoke(cb.fn, "tick")
	}
}

func (t *EventTimer) safeInvoke(fn func(), kind string) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Str("callback", kind).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("timer callback panicked")
		}
	}()
	fn()
}
