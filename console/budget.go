package console

import (
	"sync"
	"time"
)

// errorBudget caps how many error events reach listeners within a fixed
// window, so a server spewing garbage cannot flood the consumer with one
// error per frame. The window is not sliding: the counter resets whenever
// more than window has passed since the previous error, and while errors
// keep arriving back to back it keeps counting against the same window.
type errorBudget struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	count     int
	last      time.Time
	throttled bool

	now func() time.Time // stubbed in tests
}

func newErrorBudget(max int, window time.Duration) *errorBudget {
	return &errorBudget{max: max, window: window, now: time.Now}
}

// allow records one error occurrence and reports whether it may be emitted.
// The second result is true exactly once per storm, when the budget first
// runs out, so the caller can log the transition without repeating itself.
func (b *errorBudget) allow() (ok, exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.last) > b.window {
		b.count = 0
		b.throttled = false
	}
	b.last = now
	b.count++

	if b.count <= b.max {
		return true, false
	}
	first := !b.throttled
	b.throttled = true
	return false, first
}

// reset clears the counter and the throttle flag. Called on every connect
// and disconnect so a new connection starts with a full budget.
func (b *errorBudget) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
	b.last = time.Time{}
	b.throttled = false
}
