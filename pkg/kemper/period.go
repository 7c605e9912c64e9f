package kemper

import (
	"sync"
	"time"
)

// Clock is the time source for all timers of a device
type Clock interface {
	Now() time.Time
}

// SystemClock reads the monotonic wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a manual clock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// PeriodCounter reports whether a period has elapsed since its last reset.
// A positive query resets the counter.
type PeriodCounter struct {
	period    time.Duration
	clock     Clock
	lastReset time.Time
}

// NewPeriodCounter returns a counter that starts counting now.
// A nil clock means SystemClock.
func NewPeriodCounter(period time.Duration, clock Clock) *PeriodCounter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PeriodCounter{
		period:    period,
		clock:     clock,
		lastReset: clock.Now(),
	}
}

// Exceeded returns true once the period has elapsed, and resets.
func (c *PeriodCounter) Exceeded() bool {
	now := c.clock.Now()
	if now.Sub(c.lastReset) < c.period {
		return false
	}
	c.lastReset = now
	return true
}

// Reset restarts the period at the current time
func (c *PeriodCounter) Reset() {
	c.lastReset = c.clock.Now()
}

// Period returns the configured period
func (c *PeriodCounter) Period() time.Duration {
	return c.period
}

// Remaining returns the time left until the period elapses
func (c *PeriodCounter) Remaining() time.Duration {
	left := c.period - c.clock.Now().Sub(c.lastReset)
	if left < 0 {
		return 0
	}
	return left
}
