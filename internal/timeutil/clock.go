// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations the acquisition pipeline depends
// on so tests can drive timers and tickers deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)

	// After waits for d to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer that fires once after at least d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a Ticker that fires every d.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single-shot timer.
type Timer interface {
	// C returns the channel the expiry time is delivered on.
	C() <-chan time.Time

	// Stop prevents the timer from firing.
	Stop() bool

	// Reset rearms the timer to expire after d.
	Reset(d time.Duration) bool
}

// Ticker delivers periodic ticks.
type Ticker interface {
	// C returns the channel ticks are delivered on.
	C() <-chan time.Time

	// Stop turns the ticker off.
	Stop()

	// Reset restarts the ticker with the new period.
	Reset(d time.Duration)
}

// RealClock implements Clock on the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTimer struct {
	t *time.Timer
}

func (t *realTimer) C() <-chan time.Time        { return t.t.C }
func (t *realTimer) Stop() bool                 { return t.t.Stop() }
func (t *realTimer) Reset(d time.Duration) bool { return t.t.Reset(d) }

type realTicker struct {
	t *time.Ticker
}

func (t *realTicker) C() <-chan time.Time   { return t.t.C }
func (t *realTicker) Stop()                 { t.t.Stop() }
func (t *realTicker) Reset(d time.Duration) { t.t.Reset(d) }

// MockClock is a manually advanced clock for tests. Advance moves the
// clock through every timer expiry and ticker period the movement
// covers, in chronological order, so one Advance spanning several
// ticker intervals delivers several ticks.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	timers  []*MockTimer
	tickers []*MockTicker
}

// NewMockClock returns a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t on the mocked clock.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the requested duration and returns immediately.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

// Sleeps returns every duration passed to Sleep so far.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// After returns the channel of a single-shot timer for d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer returns a mock timer expiring at now+d.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{
		clock:    c,
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
	}
	c.timers = append(c.timers, t)
	return t
}

// NewTicker returns a mock ticker with period d. The tick channel is
// buffered deeper than time.Ticker's so catch-up ticks from one large
// Advance are delivered rather than dropped.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		clock:  c,
		ch:     make(chan time.Time, 64),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// TickerCount reports how many tickers have been created on this clock.
// Tests use it to wait until code under test has started its ticker
// before advancing the clock.
func (c *MockClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// TimerCount reports how many timers have been created on this clock,
// fired ones included. Tests use it the same way as TickerCount: the
// count only grows, so reaching n means the nth timer exists and can
// be fired by Advance.
func (c *MockClock) TimerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Set jumps the clock to t without firing anything.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock forward to target, firing expired timers
// and every covered ticker period along the way.
func (c *MockClock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		next, found := c.earliestDeadlineLocked(target)
		if !found {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		if next.After(c.now) {
			c.now = next
		}
		now := c.now
		timers := append([]*MockTimer(nil), c.timers...)
		tickers := append([]*MockTicker(nil), c.tickers...)
		c.mu.Unlock()

		// Fire outside the clock lock so handlers may create new
		// timers; the next loop iteration picks those up.
		for _, t := range timers {
			t.fireIfDue(now)
		}
		for _, t := range tickers {
			t.fireIfDue(now)
		}
	}
}

func (c *MockClock) earliestDeadlineLocked(limit time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range c.timers {
		if dl, ok := t.pendingBefore(limit); ok && (!found || dl.Before(next)) {
			next, found = dl, true
		}
	}
	for _, t := range c.tickers {
		if dl, ok := t.pendingBefore(limit); ok && (!found || dl.Before(next)) {
			next, found = dl, true
		}
	}
	return next, found
}

// MockTimer is a single-shot timer driven by MockClock.
type MockTimer struct {
	clock    *MockClock
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	stopped  bool
	fired    bool
}

func (t *MockTimer) C() <-chan time.Time { return t.ch }

// Stop prevents the timer from firing. It reports whether the timer
// was still pending.
func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Reset rearms the timer to fire at the clock's now+d.
func (t *MockTimer) Reset(d time.Duration) bool {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.deadline = now.Add(d)
	t.stopped = false
	t.fired = false
	return active
}

func (t *MockTimer) pendingBefore(limit time.Time) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired || t.deadline.After(limit) {
		return time.Time{}, false
	}
	return t.deadline, true
}

func (t *MockTimer) fireIfDue(now time.Time) {
	t.mu.Lock()
	if t.stopped || t.fired || t.deadline.After(now) {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	select {
	case t.ch <- now:
	default:
	}
}

// MockTicker is a periodic ticker driven by MockClock.
type MockTicker struct {
	clock   *MockClock
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop turns the ticker off.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Reset restarts the ticker with period d measured from the clock's
// current time.
func (t *MockTicker) Reset(d time.Duration) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = d
	t.next = now.Add(d)
	t.stopped = false
}

// Trigger delivers one tick immediately, bypassing the schedule. Tests
// use it to exercise tick handling without advancing the clock.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) pendingBefore(limit time.Time) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.period <= 0 || t.next.After(limit) {
		return time.Time{}, false
	}
	return t.next, true
}

func (t *MockTicker) fireIfDue(now time.Time) {
	t.mu.Lock()
	if t.stopped || t.period <= 0 || t.next.After(now) {
		t.mu.Unlock()
		return
	}
	t.next = t.next.Add(t.period)
	t.mu.Unlock()
	select {
	case t.ch <- now:
	default:
	}
}
