package frame

import (
	"encoding/binary"
	"sync/atomic"
)

// Decoder recovers interval values from a raw serial byte stream. The
// stream may carry line noise, truncated frames from a device reset, or
// arbitrary split points between reads; the decoder resynchronizes and
// never returns an error for malformed input.
//
// The decoder is a two-state machine. While seeking it discards bytes
// until a start sentinel appears. While collecting it holds the partial
// frame until all six bytes have arrived, then either emits the payload
// (end sentinel present) or drops the candidate and resumes the search
// at the byte immediately after the start sentinel. Advancing by exactly
// one byte bounds recovery from a corrupted sentinel to one frame length
// instead of losing synchronization for the rest of the stream.
//
// Feed must be called from a single goroutine. Stats is safe to call
// concurrently with Feed.
type Decoder struct {
	pending []byte
	decoded atomic.Uint64
	dropped atomic.Uint64
}

// NewDecoder returns a Decoder ready to consume a byte stream.
func NewDecoder() *Decoder {
	return &Decoder{pending: make([]byte, 0, 2*Size)}
}

// Feed consumes the next chunk of raw bytes and returns the values of
// all frames completed by this chunk, in wire order. It returns nil when
// the chunk completes no frame.
func (d *Decoder) Feed(p []byte) []uint32 {
	d.pending = append(d.pending, p...)
	buf := d.pending

	var out []uint32
	i := 0
	for {
		// Seeking: skip to the next start sentinel.
		for i < len(buf) && buf[i] != StartByte {
			i++
		}
		// Collecting: wait for the full frame.
		if len(buf)-i < Size {
			break
		}
		if buf[i+Size-1] == EndByte {
			out = append(out, binary.LittleEndian.Uint32(buf[i+payloadOffset:i+payloadOffset+payloadLen]))
			d.decoded.Add(1)
			i += Size
			continue
		}
		// End sentinel mismatch: drop the candidate and rescan one byte
		// past its start sentinel.
		d.dropped.Add(1)
		i++
	}

	// Keep the unconsumed tail (at most one partial frame) for the next
	// Feed call.
	n := copy(buf, buf[i:])
	d.pending = buf[:n]
	return out
}

// Stats returns the cumulative counts of frames decoded and frames
// dropped by resynchronization.
func (d *Decoder) Stats() (decoded, dropped uint64) {
	return d.decoded.Load(), d.dropped.Load()
}

// Reset discards any buffered partial frame. Counters are preserved.
// Call it after reopening the transport so stale bytes from a previous
// session cannot prefix the new stream.
func (d *Decoder) Reset() {
	d.pending = d.pending[:0]
}
