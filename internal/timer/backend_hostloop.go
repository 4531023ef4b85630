package timer

import (
	"errors"
	"sync"
	"time"
)

// ScheduleFunc arms a host-native periodic callback (a UI timer, an idle
// event hook) and returns a cancel func that disarms it.
type ScheduleFunc func(interval time.Duration, tick func()) (cancel func(), err error)

// HostLoopBackend adapts a host-supplied scheduling primitive to the Backend
// interface. Hosts whose own loop must drive the ticks (single-threaded UI
// applications) register one of these at high priority; availability is
// simply whether a ScheduleFunc was provided.
type HostLoopBackend struct {
	schedule ScheduleFunc
}

type hostLoopHandle struct {
	cancel func()
	once   sync.Once
}

// NewHostLoopBackend wraps schedule. A nil schedule yields a backend that
// reports unavailable, which the registry skips during selection.
func NewHostLoopBackend(schedule ScheduleFunc) *HostLoopBackend {
	return &HostLoopBackend{schedule: schedule}
}

func (b *HostLoopBackend) Available() bool {
	return b != nil && b.schedule != nil
}

func (b *HostLoopBackend) Start(interval time.Duration, tick func()) (Handle, error) {
	if !b.Available() {
		return nil, errors.New("host loop backend has no schedule func")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if tick == nil {
		return nil, errors.New("tick callback is nil")
	}
	cancel, err := b.schedule(interval, tick)
	if err != nil {
		return nil, err
	}
	return &hostLoopHandle{cancel: cancel}, nil
}

func (b *HostLoopBackend) Stop(h Handle) {
	hh, ok := h.(*hostLoopHandle)
	if !ok || hh == nil || hh.cancel == nil {
		return
	}
	hh.once.Do(hh.cancel)
}
