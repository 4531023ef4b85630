package timer

import (
	"errors"
	"sync"
	"time"
)

// GoroutineBackend drives ticks from a dedicated goroutine with a
// time.Ticker. It is always available and serves as the generic fallback when
// no host-native scheduling primitive has been registered. The goroutine only
// invokes the tick callback; it must never touch host-owned resources itself.
type GoroutineBackend struct{}

type goroutineHandle struct {
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (GoroutineBackend) Available() bool { return true }

func (GoroutineBackend) Start(interval time.Duration, tick func()) (Handle, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if tick == nil {
		return nil, errors.New("tick callback is nil")
	}
	h := &goroutineHandle{stop: make(chan struct{})}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-t.C:
				// Re-check cancellation so a stop that raced the
				// ticker wins.
				select {
				case <-h.stop:
					return
				default:
				}
				tick()
			}
		}
	}()
	return h, nil
}

// Stop cancels the worker and joins it. The join is bounded by the duration
// of at most one in-flight tick.
func (GoroutineBackend) Stop(h Handle) {
	gh, ok := h.(*goroutineHandle)
	if !ok || gh == nil {
		return
	}
	gh.once.Do(func() { close(gh.stop) })
	gh.wg.Wait()
}
