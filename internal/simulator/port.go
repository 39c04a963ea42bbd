package simulator

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/interval.report/internal/serialio"
)

// Port is one end of a virtual serial link, seen from the host side:
// Read returns bytes the simulated device has produced, Write hands
// bytes to the device. It implements serialio.TimeoutPorter so the
// acquisition loop can run against it unchanged.
type Port struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     bytes.Buffer
	sink    func([]byte)
	timeout time.Duration
	closed  bool
}

var _ serialio.TimeoutPorter = (*Port)(nil)

// newPort returns a port whose host-side writes are delivered to sink.
// A nil sink discards writes, which is what the one-way data line does.
func newPort(sink func([]byte)) *Port {
	p := &Port{sink: sink}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until device output is available, the read timeout
// expires, or the port is closed. A timed-out read returns 0 bytes and
// no error, matching real serial port behaviour; a closed port returns
// io.EOF once drained.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timeout > 0 {
		deadline := time.Now().Add(p.timeout)
		wake := time.AfterFunc(p.timeout, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		defer wake.Stop()
		for !p.closed && p.buf.Len() == 0 && time.Now().Before(deadline) {
			p.cond.Wait()
		}
	} else {
		for !p.closed && p.buf.Len() == 0 {
			p.cond.Wait()
		}
	}

	if p.buf.Len() == 0 {
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	return p.buf.Read(b)
}

// Write hands bytes to the simulated device. The device handles them
// before Write returns, so a command's response is already readable
// when the call comes back.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, serialio.ErrPortClosed
	}
	sink := p.sink
	p.mu.Unlock()

	// The sink runs unlocked: command handlers push their response
	// back through this same port.
	if sink != nil {
		sink(b)
	}
	return len(b), nil
}

// SetReadTimeout implements serialio.TimeoutPorter. Zero or negative
// restores fully blocking reads.
func (p *Port) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timeout < 0 {
		timeout = 0
	}
	p.timeout = timeout
	return nil
}

// Close wakes any blocked reader. It is safe to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// push appends device output and wakes readers. Bytes pushed after
// Close are discarded.
func (p *Port) push(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.buf.Write(b)
	p.cond.Broadcast()
}

// pushWriter adapts a port's device side to io.Writer for the frame
// emitter.
type pushWriter struct{ p *Port }

func (w pushWriter) Write(b []byte) (int, error) {
	w.p.push(b)
	return len(b), nil
}
