package serialio

import (
	"go.bug.st/serial"
)

// RealPortFactory opens ports on actual device nodes via go.bug.st/serial.
type RealPortFactory struct{}

// NewRealPortFactory creates a factory for real serial hardware.
func NewRealPortFactory() *RealPortFactory {
	return &RealPortFactory{}
}

// Open opens the device at path with the given options. Ports returned by
// the underlying driver also satisfy TimeoutPorter.
func (*RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}
