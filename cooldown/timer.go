// Package cooldown implements the resend throttle: a countdown in whole
// seconds driven by a cancellable one-second tick.
package cooldown

import (
	"sync"
	"time"
)

// Timer counts down from the duration passed to Start. Remaining never
// increases between Start calls and holds at zero once the window elapses.
type Timer struct {
	mu       sync.Mutex
	clock    Clock
	deadline time.Time
	running  bool
	gen      uint64
	tick     Stopper
	onTick   func(remaining int)
}

// New returns a stopped Timer. A nil clock uses the system clock.
func New(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Timer{clock: clock}
}

// OnTick registers fn to be called after every tick with the remaining
// seconds. The final call reports 0. fn must not call back into the Timer
// synchronously with Start or Stop while holding its own locks.
func (t *Timer) OnTick(fn func(remaining int)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Start (re)starts the countdown at d, cancelling any tick still scheduled.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	if d <= 0 {
		t.deadline = time.Time{}
		return
	}
	t.deadline = t.clock.Now().Add(d)
	t.running = true
	t.scheduleLocked(t.gen)
}

// Stop cancels the scheduled tick and zeroes the window.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.deadline = time.Time{}
}

// Halt cancels the scheduled tick but keeps the deadline: Remaining keeps
// counting down on the clock and no further OnTick calls are made.
func (t *Timer) Halt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Remaining returns the whole seconds left, rounded up, never negative.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Timer) IsReady() bool { return t.Remaining() == 0 }

// Running reports whether a tick is still scheduled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) remainingLocked() int {
	if t.deadline.IsZero() {
		return 0
	}
	left := t.deadline.Sub(t.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	t.running = false
}

func (t *Timer) scheduleLocked(gen uint64) {
	t.tick = t.clock.AfterFunc(time.Second, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	rem := t.remainingLocked()
	if rem > 0 {
		t.scheduleLocked(gen)
	} else {
		t.running = false
		t.tick = nil
	}
	cb := t.onTick
	t.mu.Unlock()
	if cb != nil {
		cb(rem)
	}
}
