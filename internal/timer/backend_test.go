package timer

import (
	"sync"
	"testing"
	"time"
)

func TestGoroutineBackendTicks(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks int
	)
	b := GoroutineBackend{}
	h, err := b.Start(time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop(h)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := ticks
		mu.Unlock()
		if n >= 3 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for ticks")
}

func TestGoroutineBackendStopHaltsTicks(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks int
	)
	b := GoroutineBackend{}
	h, err := b.Start(time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Stop(h)
	mu.Lock()
	before := ticks
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := ticks
	mu.Unlock()
	if after != before {
		t.Fatalf("ticks advanced after Stop: %d -> %d", before, after)
	}
}

func TestGoroutineBackendStopIdempotent(t *testing.T) {
	b := GoroutineBackend{}
	h, err := b.Start(time.Millisecond, func() {})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Stop(h)
	b.Stop(h)
	b.Stop(nil)
	b.Stop("not a handle")
}

func TestGoroutineBackendRejectsBadArgs(t *testing.T) {
	b := GoroutineBackend{}
	if _, err := b.Start(0, func() {}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := b.Start(time.Millisecond, nil); err == nil {
		t.Fatalf("expected error for nil tick")
	}
}

func TestHostLoopBackend(t *testing.T) {
	var (
		armed     bool
		cancelled int
	)
	b := NewHostLoopBackend(func(interval time.Duration, tick func()) (func(), error) {
		armed = true
		if interval != 5*time.Millisecond {
			t.Fatalf("interval = %v, want 5ms", interval)
		}
		tick()
		return func() { cancelled++ }, nil
	})
	if !b.Available() {
		t.Fatalf("backend with schedule func should be available")
	}
	fired := 0
	h, err := b.Start(5*time.Millisecond, func() { fired++ })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !armed || fired != 1 {
		t.Fatalf("armed=%v fired=%d", armed, fired)
	}
	b.Stop(h)
	b.Stop(h)
	if cancelled != 1 {
		t.Fatalf("cancel ran %d times, want 1", cancelled)
	}
}

func TestHostLoopBackendUnavailable(t *testing.T) {
	b := NewHostLoopBackend(nil)
	if b.Available() {
		t.Fatalf("backend without schedule func should not be available")
	}
	if _, err := b.Start(time.Millisecond, func() {}); err == nil {
		t.Fatalf("expected error from Start on unavailable backend")
	}
}
