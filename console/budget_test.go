package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives an errorBudget without sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newTestBudget(max int) (*errorBudget, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newErrorBudget(max, time.Second)
	b.now = clock.now
	return b, clock
}

func TestErrorBudget_AllowsUpToMax(t *testing.T) {
	b, _ := newTestBudget(5)

	allowed := 0
	for i := 0; i < 10; i++ {
		if ok, _ := b.allow(); ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestErrorBudget_ExhaustedReportedOnce(t *testing.T) {
	b, _ := newTestBudget(2)

	var transitions int
	for i := 0; i < 6; i++ {
		if _, exhausted := b.allow(); exhausted {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}

func TestErrorBudget_ResetsAfterQuietGap(t *testing.T) {
	b, clock := newTestBudget(5)

	for i := 0; i < 7; i++ {
		b.allow()
	}

	// More than the window since the last error: counter starts over.
	clock.advance(1001 * time.Millisecond)
	ok, _ := b.allow()
	assert.True(t, ok)

	allowed := 1
	for i := 0; i < 9; i++ {
		if ok, _ := b.allow(); ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestErrorBudget_ContinuousStormNeverResets(t *testing.T) {
	b, clock := newTestBudget(5)

	// Errors arriving every 900ms keep refreshing the window, so after the
	// first five nothing more gets through.
	allowed := 0
	for i := 0; i < 20; i++ {
		if ok, _ := b.allow(); ok {
			allowed++
		}
		clock.advance(900 * time.Millisecond)
	}
	assert.Equal(t, 5, allowed)
}

func TestErrorBudget_ExactWindowBoundaryDoesNotReset(t *testing.T) {
	b, clock := newTestBudget(1)

	ok, _ := b.allow()
	assert.True(t, ok)

	// Exactly the window is not "more than" the window.
	clock.advance(time.Second)
	ok, _ = b.allow()
	assert.False(t, ok)

	clock.advance(time.Second + time.Nanosecond)
	ok, _ = b.allow()
	assert.True(t, ok)
}

func TestErrorBudget_Reset(t *testing.T) {
	b, _ := newTestBudget(5)

	for i := 0; i < 8; i++ {
		b.allow()
	}

	b.reset()

	allowed := 0
	for i := 0; i < 8; i++ {
		if ok, _ := b.allow(); ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}
