// Package capture models the detector-side acquisition path: an
// interrupt-driven timestamp recorder feeding a ring buffer, a debounce
// filter that turns consecutive timestamps into qualified intervals, and
// an emitter that frames those intervals onto the transport. The same
// code drives the in-process device simulator and the offline tools, so
// it stays free of hardware dependencies; a real trigger source calls
// Tick the way an interrupt handler would.
package capture

import (
	"sync/atomic"
	"time"
)

// Edge selects which signal edge counts as a pulse.
type Edge int

const (
	RisingEdge Edge = iota
	FallingEdge
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "unknown"
	}
}

// Config configures a Capture.
type Config struct {
	// RingSize is the timestamp buffer capacity. Must be a power of
	// two; DefaultRingSize when zero.
	RingSize int

	// Edge is the trigger polarity. Capture itself is edge-agnostic;
	// the value is carried for the layer that wires the trigger.
	Edge Edge

	// Clock returns the current microsecond counter. Defaults to a
	// monotonic microsecond clock that wraps like a 32-bit hardware
	// counter (about every 71.6 minutes).
	Clock func() uint32
}

var processStart = time.Now()

// Micros is the default microsecond clock: monotonic time since process
// start, truncated to 32 bits.
func Micros() uint32 {
	return uint32(time.Since(processStart).Microseconds())
}

// Capture owns all trigger-side state: the ring buffer, its cursors,
// and the clock. Keeping it in one struct (rather than free-floating
// globals) means the trigger context and the drain context share
// exactly one well-defined object with the ring's single-writer,
// single-reader discipline.
type Capture struct {
	ring  *Ring
	clock func() uint32
	edge  Edge
	ticks atomic.Uint64
}

// New returns a Capture for the given config.
func New(cfg Config) (*Capture, error) {
	size := cfg.RingSize
	if size == 0 {
		size = DefaultRingSize
	}
	ring, err := NewRing(size)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = Micros
	}
	return &Capture{ring: ring, clock: clock, edge: cfg.Edge}, nil
}

// Tick records one edge at the current clock reading. It is the
// interrupt-context entry point: a clock read, a slot store, and a
// cursor advance, nothing else.
func (c *Capture) Tick() {
	c.TickAt(c.clock())
}

// TickAt records one edge with an explicit timestamp. Tests and the
// simulator use it to drive deterministic sequences.
func (c *Capture) TickAt(ts uint32) {
	c.ring.Put(ts)
	c.ticks.Add(1)
}

// Poll returns the oldest undrained timestamp, or false when none is
// pending. Main-loop context only; never blocks.
func (c *Capture) Poll() (uint32, bool) {
	return c.ring.Get()
}

// Pending reports how many captured timestamps await draining.
func (c *Capture) Pending() int {
	return c.ring.Len()
}

// Ticks reports the total number of edges recorded, including any that
// were later overwritten in the ring.
func (c *Capture) Ticks() uint64 {
	return c.ticks.Load()
}

// Edge reports the configured trigger polarity.
func (c *Capture) Edge() Edge {
	return c.edge
}
