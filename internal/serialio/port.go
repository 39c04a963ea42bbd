package serialio

import (
	"io"
	"time"
)

// SerialPorter is the minimal surface the rest of the system needs from a
// serial port. The abstraction keeps the acquisition and command layers
// testable without real hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends SerialPorter with a bounded read deadline. Ports
// may optionally implement it; the acquisition read loop requires it so a
// quiet line cannot hold up shutdown.
type TimeoutPorter interface {
	SerialPorter
	// SetReadTimeout bounds how long a Read may block. A timed-out read
	// returns 0 bytes and no error, matching go.bug.st/serial behaviour.
	SetReadTimeout(timeout time.Duration) error
}

// PortFactory creates serial ports. Splitting construction from use lets
// the daemon swap real device nodes for simulated or test ports.
type PortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// PortOpener adapts a plain function to the PortFactory interface.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)

func (f PortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}
