package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/interval.report/internal/timeutil"
)

// DefaultDispatchInterval is the batch cadence used when no interval is
// configured. It trades delivery latency against batch size for update
// loops that repaint on the order of a few times per second.
const DefaultDispatchInterval = 100 * time.Millisecond

// BatchFunc receives one drained batch per dispatch tick. The slice is
// owned by the callee; the dispatcher never touches it afterwards.
type BatchFunc func(batch []Item)

// Dispatcher drains a Queue on a fixed clock tick and hands each
// non-empty batch to a single consumer callback. Items queued before a
// tick are delivered by that tick, exactly once, in insertion order.
// Empty ticks deliver nothing.
type Dispatcher struct {
	queue    *Queue
	interval time.Duration
	clock    timeutil.Clock
	deliver  BatchFunc

	stateMu sync.Mutex
	paused  bool
	ticker  timeutil.Ticker
}

// NewDispatcher wires a dispatcher to a queue and a consumer callback.
// interval <= 0 selects DefaultDispatchInterval; a nil clock selects the
// real clock.
func NewDispatcher(queue *Queue, interval time.Duration, clock timeutil.Clock, deliver BatchFunc) *Dispatcher {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Dispatcher{
		queue:    queue,
		interval: interval,
		clock:    clock,
		deliver:  deliver,
	}
}

// Run dispatches batches until ctx is cancelled, then performs one final
// drain (paused or not) so queued items are not stranded at shutdown,
// and returns the context error.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	d.stateMu.Lock()
	d.ticker = ticker
	if d.paused {
		ticker.Stop()
	}
	d.stateMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			d.dispatch()
			return ctx.Err()
		case <-ticker.C():
			if d.Paused() {
				continue
			}
			d.dispatch()
		}
	}
}

// Pause stops dispatch ticks. Items pushed while paused stay queued.
func (d *Dispatcher) Pause() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.paused {
		return
	}
	d.paused = true
	if d.ticker != nil {
		d.ticker.Stop()
	}
}

// Resume restarts dispatch ticks. Everything queued during the pause
// drains on the first tick after Resume.
func (d *Dispatcher) Resume() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if !d.paused {
		return
	}
	d.paused = false
	if d.ticker != nil {
		d.ticker.Reset(d.interval)
	}
}

// Paused reports whether dispatching is currently paused.
func (d *Dispatcher) Paused() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.paused
}

// Interval reports the configured dispatch interval.
func (d *Dispatcher) Interval() time.Duration {
	return d.interval
}

func (d *Dispatcher) dispatch() {
	batch := d.queue.DrainAll()
	if len(batch) == 0 {
		return
	}
	d.deliver(batch)
}
