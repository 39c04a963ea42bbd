package serialio

import (
	"errors"
	"testing"
	"time"
)

func TestTestablePort_ReadWrite(t *testing.T) {
	port := NewTestablePort()

	port.AddReadData([]byte("interval data"))

	buf := make([]byte, 32)
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(buf[:n]) != "interval data" {
		t.Errorf("Read = %q, want %q", buf[:n], "interval data")
	}

	if _, err := port.Write([]byte("j420\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "j420\n" {
		t.Errorf("GetWrittenData = %q, want %q", got, "j420\n")
	}

	if port.ReadCalls != 1 || port.WriteCalls != 1 {
		t.Errorf("calls = %d reads / %d writes, want 1/1", port.ReadCalls, port.WriteCalls)
	}
}

func TestTestablePort_ErrorInjection(t *testing.T) {
	port := NewTestablePort()

	readErr := errors.New("bus glitch")
	port.ReadError = readErr
	if _, err := port.Read(make([]byte, 8)); !errors.Is(err, readErr) {
		t.Errorf("Read error = %v, want %v", err, readErr)
	}

	// Injected errors are one-shot.
	port.AddReadData([]byte("ok"))
	if _, err := port.Read(make([]byte, 8)); err != nil {
		t.Errorf("second Read returned error: %v", err)
	}

	writeErr := errors.New("write glitch")
	port.WriteError = writeErr
	if _, err := port.Write([]byte("x")); !errors.Is(err, writeErr) {
		t.Errorf("Write error = %v, want %v", err, writeErr)
	}
	if _, err := port.Write([]byte("x")); err != nil {
		t.Errorf("second Write returned error: %v", err)
	}
}

func TestTestablePort_ClosedPort(t *testing.T) {
	port := NewTestablePort()
	if err := port.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if _, err := port.Read(make([]byte, 8)); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Read after close = %v, want ErrPortClosed", err)
	}
	if _, err := port.Write([]byte("x")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Write after close = %v, want ErrPortClosed", err)
	}
}

// TestTestablePort_BlockingRead verifies a blocked read wakes when data
// arrives from another goroutine.
func TestTestablePort_BlockingRead(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true

	result := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := port.Read(buf)
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		result <- string(buf[:n])
	}()

	// Reader should be blocked; no data yet.
	select {
	case got := <-result:
		t.Fatalf("Read returned %q before data was added", got)
	case <-time.After(20 * time.Millisecond):
	}

	port.AddReadData([]byte("pulse"))
	select {
	case got := <-result:
		if got != "pulse" {
			t.Errorf("Read = %q, want %q", got, "pulse")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Read never woke after AddReadData")
	}
}

// TestTestablePort_ReadTimeout verifies a blocked read with a timeout
// returns empty like a real timeout-capable port.
func TestTestablePort_ReadTimeout(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		t.Fatalf("SetReadTimeout returned error: %v", err)
	}

	start := time.Now()
	n, err := port.Read(make([]byte, 8))
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("timed-out Read returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("timed-out Read returned %d bytes, want 0", n)
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("Read returned after %v, expected to wait near the timeout", elapsed)
	}
}

func TestTestablePort_CloseWakesBlockedReader(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true

	result := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 8))
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	port.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrPortClosed) {
			t.Errorf("Read after close = %v, want ErrPortClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Read never woke after Close")
	}
}

func TestTestablePort_Reset(t *testing.T) {
	port := NewTestablePort()
	port.AddReadData([]byte("stale"))
	port.Write([]byte("stale"))
	port.ReadError = errors.New("stale")
	port.Close()

	port.Reset()

	if port.Closed || port.ReadError != nil || port.ReadCalls != 0 || port.WriteCalls != 0 {
		t.Error("Reset did not clear state")
	}
	if port.ReadBuffer.Len() != 0 || port.WriteBuffer.Len() != 0 {
		t.Error("Reset did not clear buffers")
	}
}

func TestMockPortFactory_RecordsCalls(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(port)

	opts := PortOptions{BaudRate: 9600}
	got, err := factory.Open("/dev/ttyUSB0", opts)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if got != SerialPorter(port) {
		t.Error("Open did not return the configured port")
	}

	if factory.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", factory.CallCount())
	}
	last := factory.LastCall()
	if last == nil {
		t.Fatal("LastCall returned nil")
	}
	if last.Path != "/dev/ttyUSB0" {
		t.Errorf("recorded path = %q, want /dev/ttyUSB0", last.Path)
	}
	if last.Options.BaudRate != 9600 {
		t.Errorf("recorded baud = %d, want 9600", last.Options.BaudRate)
	}
}

func TestMockPortFactory_Error(t *testing.T) {
	factory := NewMockPortFactory(nil)
	openErr := errors.New("no such device")
	factory.Error = openErr

	if _, err := factory.Open("/dev/ttyUSB0", PortOptions{}); !errors.Is(err, openErr) {
		t.Errorf("Open error = %v, want %v", err, openErr)
	}
}

// TestMockPortFactory_OpenFunc drives the per-call behaviour used by
// reconnect tests: fail the first open, succeed on the second.
func TestMockPortFactory_OpenFunc(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(nil)

	calls := 0
	factory.OpenFunc = func(path string, opts PortOptions) (SerialPorter, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("device busy")
		}
		return port, nil
	}

	if _, err := factory.Open("/dev/ttyUSB0", PortOptions{}); err == nil {
		t.Error("first Open should fail")
	}
	got, err := factory.Open("/dev/ttyUSB0", PortOptions{})
	if err != nil {
		t.Fatalf("second Open returned error: %v", err)
	}
	if got != SerialPorter(port) {
		t.Error("second Open did not return the configured port")
	}
	if factory.CallCount() != 2 {
		t.Errorf("CallCount = %d, want 2", factory.CallCount())
	}
}

func TestMockPortFactory_Reset(t *testing.T) {
	factory := NewMockPortFactory(nil)
	factory.Error = errors.New("x")
	factory.OpenFunc = func(string, PortOptions) (SerialPorter, error) { return nil, nil }
	factory.Open("/dev/ttyUSB0", PortOptions{})

	factory.Reset()

	if factory.CallCount() != 0 || factory.Error != nil || factory.OpenFunc != nil {
		t.Error("Reset did not clear factory state")
	}
	if factory.LastCall() != nil {
		t.Error("LastCall should be nil after Reset")
	}
}
