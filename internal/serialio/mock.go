package serialio

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestablePort reads and writes after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements TimeoutPorter with configurable behaviour for
// tests and the in-process simulator. It gives fine-grained control over
// reads, writes, errors, and latency.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout bounds blocking reads; zero blocks indefinitely
	ReadTimeout time.Duration

	// BlockReads causes Read on an empty buffer to wait for data, a
	// timeout, or Close, like a real port
	BlockReads bool

	// readCond signals blocked readers
	readCond *sync.Cond
}

// NewTestablePort creates a TestablePort with empty buffers.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read reads from the read buffer, simulating latency, errors, blocking,
// and read timeouts as configured. A timed-out read returns 0 bytes and a
// nil error, matching real timeout-capable ports.
func (p *TestablePort) Read(buf []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, ErrPortClosed
	}

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.ReadLatency > 0 {
		p.mu.Unlock()
		time.Sleep(p.ReadLatency)
		p.mu.Lock()
	}

	if p.BlockReads && p.ReadBuffer.Len() == 0 {
		if p.ReadTimeout > 0 {
			deadline := time.Now().Add(p.ReadTimeout)
			wake := time.AfterFunc(p.ReadTimeout, func() {
				p.mu.Lock()
				p.readCond.Broadcast()
				p.mu.Unlock()
			})
			defer wake.Stop()
			for !p.Closed && p.ReadBuffer.Len() == 0 && time.Now().Before(deadline) {
				p.readCond.Wait()
			}
			if !p.Closed && p.ReadBuffer.Len() == 0 {
				return 0, nil
			}
		} else {
			for !p.Closed && p.ReadBuffer.Len() == 0 {
				p.readCond.Wait()
			}
		}
		if p.Closed {
			return 0, ErrPortClosed
		}
	}

	return p.ReadBuffer.Read(buf)
}

// Write writes to the write buffer, simulating latency and errors.
func (p *TestablePort) Write(buf []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.Closed {
		return 0, ErrPortClosed
	}

	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	if p.WriteLatency > 0 {
		p.mu.Unlock()
		time.Sleep(p.WriteLatency)
		p.mu.Lock()
	}

	return p.WriteBuffer.Write(buf)
}

// Close marks the port as closed and wakes any blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()

	return p.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (p *TestablePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadTimeout = timeout
	return nil
}

// AddReadData appends data for subsequent Read calls and wakes a blocked
// reader.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Signal()
}

// GetWrittenData returns all data written to the port so far.
func (p *TestablePort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.WriteBuffer.Bytes()...)
}

// Reset clears buffers, counters, and injected behaviour.
func (p *TestablePort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Reset()
	p.WriteBuffer.Reset()
	p.ReadCalls = 0
	p.WriteCalls = 0
	p.Closed = false
	p.ReadError = nil
	p.WriteError = nil
	p.CloseError = nil
	p.ReadLatency = 0
	p.WriteLatency = 0
}

// MockPortFactory implements PortFactory for tests. It records every Open
// call and hands back a configured port, error, or the result of a custom
// OpenFunc when reconnect sequences need per-call behaviour.
type MockPortFactory struct {
	mu sync.Mutex

	// Port is returned from Open when OpenFunc is unset
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenFunc overrides Port/Error when set
	OpenFunc func(path string, opts PortOptions) (SerialPorter, error)

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records the arguments of one Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockPortFactory creates a factory that always opens the given port.
func NewMockPortFactory(port SerialPorter) *MockPortFactory {
	return &MockPortFactory{Port: port}
}

// Open returns the configured port, error, or OpenFunc result.
func (f *MockPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})
	fn := f.OpenFunc
	port, err := f.Port, f.Error
	f.mu.Unlock()

	if fn != nil {
		return fn(path, opts)
	}
	if err != nil {
		return nil, err
	}
	return port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// CallCount returns how many times Open has been called.
func (f *MockPortFactory) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// Reset clears recorded calls and injected behaviour.
func (f *MockPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = nil
	f.Error = nil
	f.OpenFunc = nil
}
