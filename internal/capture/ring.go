package capture

import (
	"fmt"
	"sync/atomic"
)

// DefaultRingSize is the ring capacity used when a Config leaves it
// unset. Sized so a burst arriving faster than the main loop drains
// still fits without losing edges.
const DefaultRingSize = 128

// Ring is a fixed-capacity buffer of microsecond timestamps with
// independent write and read cursors. It is safe for exactly one
// writer (the interrupt context) and one reader (the main-loop
// context) without locks: Put performs nothing beyond a slot store and
// a cursor advance, so it completes in bounded time no matter what the
// reader is doing.
//
// When the writer laps a stalled reader the oldest unread entries are
// silently overwritten. That is a bounded-staleness trade-off, not an
// error; the reader detects the lap and resumes at the oldest entry
// that survived.
type Ring struct {
	buf  []uint32
	mask uint32
	size uint32
	head atomic.Uint32 // next slot to write
	tail atomic.Uint32 // next slot to read
}

// NewRing returns a ring with the given capacity, which must be a
// power of two so index wrapping stays a mask rather than a modulo.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring capacity must be a power of two, got %d", capacity)
	}
	return &Ring{
		buf:  make([]uint32, capacity),
		mask: uint32(capacity - 1),
		size: uint32(capacity),
	}, nil
}

// Put records one timestamp. Writer context only.
func (r *Ring) Put(ts uint32) {
	w := r.head.Load()
	r.buf[w&r.mask] = ts
	r.head.Store(w + 1)
}

// Get returns the oldest unread timestamp, or false when the ring is
// empty. Reader context only. If the writer lapped the reader since the
// last call, the overwritten entries are skipped and the oldest
// surviving entry is returned.
func (r *Ring) Get() (uint32, bool) {
	for {
		t := r.tail.Load()
		h := r.head.Load()
		if h == t {
			return 0, false
		}
		if h-t > r.size {
			// Lapped: jump to the oldest entry the writer has not
			// reclaimed.
			r.tail.CompareAndSwap(t, h-r.size)
			continue
		}
		v := r.buf[t&r.mask]
		if r.head.Load()-t > r.size {
			// The slot was overwritten between the loads above.
			continue
		}
		if r.tail.CompareAndSwap(t, t+1) {
			return v, true
		}
	}
}

// Len reports how many unread entries are buffered, at most Cap.
func (r *Ring) Len() int {
	h := r.head.Load()
	t := r.tail.Load()
	n := h - t
	if n > r.size {
		n = r.size
	}
	return int(n)
}

// Cap reports the fixed capacity of the ring.
func (r *Ring) Cap() int {
	return int(r.size)
}
