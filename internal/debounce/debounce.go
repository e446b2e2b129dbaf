// Package debounce rate-limits bursts of calls. Trailing runs only the last
// call of a burst once the burst goes quiet; Leading runs the first call of a
// burst at once and drops the rest until the burst goes quiet.
package debounce

import (
	"sync"
	"time"
)

// Timer is a pending AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// System is the wall clock.
var System Clock = systemClock{}

// Trailing coalesces a burst of calls into one run of the last call, wait
// after the burst's final call.
type Trailing struct {
	mu    sync.Mutex
	clock Clock
	wait  time.Duration
	timer Timer
	fn    func()
	gen   uint64
	// firing counts runs in progress; they still count as pending.
	firing int
}

// NewTrailing returns a trailing-edge debouncer.
func NewTrailing(clock Clock, wait time.Duration) *Trailing {
	return &Trailing{clock: clock, wait: wait}
}

// Trigger (re)starts the quiet window. fn replaces whatever was scheduled.
func (t *Trailing) Trigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.fn = fn
	t.timer = t.clock.AfterFunc(t.wait, func() { t.fire(gen) })
}

func (t *Trailing) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.fn == nil {
		t.mu.Unlock()
		return
	}
	fn := t.fn
	t.fn = nil
	t.timer = nil
	t.firing++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.firing--
		t.mu.Unlock()
	}()
	fn()
}

// Pending reports whether a call is scheduled or still running.
func (t *Trailing) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fn != nil || t.firing > 0
}

// Cancel drops the scheduled call, if any.
func (t *Trailing) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.fn = nil
}

// Leading runs the first call of a burst immediately. Calls arriving while the
// window is open are dropped and push the window's end back.
type Leading struct {
	mu    sync.Mutex
	clock Clock
	wait  time.Duration
	timer Timer
	gen   uint64
}

// NewLeading returns a leading-edge debouncer.
func NewLeading(clock Clock, wait time.Duration) *Leading {
	return &Leading{clock: clock, wait: wait}
}

// Trigger runs fn synchronously when no window is open and reports whether it ran.
func (l *Leading) Trigger(fn func()) bool {
	l.mu.Lock()
	open := l.timer != nil
	if open {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = l.clock.AfterFunc(l.wait, func() { l.close(gen) })
	l.mu.Unlock()

	if open {
		return false
	}
	fn()
	return true
}

func (l *Leading) close(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen == l.gen {
		l.timer = nil
	}
}

// Cancel closes the window so the next call runs at once.
func (l *Leading) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
}
