package capture

import (
	"io"
	"sync/atomic"

	"github.com/banshee-data/interval.report/internal/frame"
)

// Emitter is the device main loop's output half: it drains captured
// timestamps, runs them through the debounce filter, and writes one
// frame per qualified interval. Frames go out in capture order; a write
// failure stops the current flush and leaves undrained timestamps in
// the ring for the next one.
type Emitter struct {
	capture *Capture
	filter  *IntervalFilter
	out     io.Writer
	emitted atomic.Uint64
}

// NewEmitter wires a capture and filter to the transport writer.
func NewEmitter(c *Capture, f *IntervalFilter, out io.Writer) *Emitter {
	return &Emitter{capture: c, filter: f, out: out}
}

// Flush drains every pending timestamp and returns the number of frames
// written. Debounced timestamps are consumed without output.
func (e *Emitter) Flush() (int, error) {
	written := 0
	for {
		ts, ok := e.capture.Poll()
		if !ok {
			return written, nil
		}
		delta, ok := e.filter.Offer(ts)
		if !ok {
			continue
		}
		if err := frame.WriteValue(e.out, delta); err != nil {
			return written, err
		}
		written++
		e.emitted.Add(1)
	}
}

// Emitted reports the total number of frames written over the emitter's
// lifetime.
func (e *Emitter) Emitted() uint64 {
	return e.emitted.Load()
}
