package capture

// DefaultDebounceMicros is the minimum interval, in microseconds, for a
// pulse to count as a genuine event rather than an electrical
// re-trigger of the previous one.
const DefaultDebounceMicros = 10

// IntervalFilter turns consecutive pulse timestamps into debounced
// intervals. The first timestamp primes the reference and emits
// nothing. After that each timestamp yields the unsigned 32-bit
// difference from the reference, which survives a single wrap of the
// microsecond counter.
//
// A difference at or below the threshold is discarded WITHOUT moving
// the reference: a burst of re-triggers collapses onto the original
// pulse instead of walking the reference forward trigger by trigger.
type IntervalFilter struct {
	threshold uint32
	last      uint32
	primed    bool
}

// NewIntervalFilter returns a filter with the given debounce threshold
// in microseconds.
func NewIntervalFilter(thresholdMicros uint32) *IntervalFilter {
	return &IntervalFilter{threshold: thresholdMicros}
}

// Offer feeds the next timestamp. It returns the qualified interval and
// true, or false when the timestamp primed the filter or was debounced.
func (f *IntervalFilter) Offer(ts uint32) (uint32, bool) {
	if !f.primed {
		f.last = ts
		f.primed = true
		return 0, false
	}
	delta := ts - f.last
	if delta <= f.threshold {
		return 0, false
	}
	f.last = ts
	return delta, true
}

// Threshold reports the debounce threshold in microseconds.
func (f *IntervalFilter) Threshold() uint32 {
	return f.threshold
}

// Reset forgets the reference timestamp; the next Offer primes again.
func (f *IntervalFilter) Reset() {
	f.primed = false
	f.last = 0
}
