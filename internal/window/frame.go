package window

import (
	"sync"
	"time"
)

// FrameInterval is the default coalescing window for move and resize
// handling, roughly one display frame.
const FrameInterval = 16 * time.Millisecond

// Scheduler runs work on a later frame.
type Scheduler interface {
	// Schedule arranges for fn to run once. The returned func cancels it
	// if it has not started.
	Schedule(fn func()) (cancel func())
}

// Timer schedules on a fixed delay.
type Timer time.Duration

func (t Timer) Schedule(fn func()) func() {
	timer := time.AfterFunc(time.Duration(t), fn)
	return func() { timer.Stop() }
}

// Immediate runs work synchronously. Tests use it.
type Immediate struct{}

func (Immediate) Schedule(fn func()) func() {
	fn()
	return func() {}
}

// frameGate coalesces requests so fn runs at most once per frame.
type frameGate struct {
	sched Scheduler

	mu      sync.Mutex
	pending bool
	cancel  func()
}

func (g *frameGate) request(fn func()) {
	g.mu.Lock()
	if g.pending {
		g.mu.Unlock()
		return
	}
	g.pending = true
	g.mu.Unlock()

	cancel := g.sched.Schedule(func() {
		g.mu.Lock()
		g.pending = false
		g.cancel = nil
		g.mu.Unlock()
		fn()
	})

	g.mu.Lock()
	if g.pending {
		g.cancel = cancel
	}
	g.mu.Unlock()
}

func (g *frameGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.pending = false
}
