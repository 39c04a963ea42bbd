// Package acquisition owns the host side of the interval stream: it
// opens the detector's data port, runs the bounded-timeout read loop,
// feeds bytes through the frame decoder, and pushes decoded intervals
// into the dispatch queue. It also supplies the connection policy the
// transport layer deliberately leaves out: a silence watchdog and
// exponential-backoff reconnects.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/interval.report/internal/frame"
	"github.com/banshee-data/interval.report/internal/monitoring"
	"github.com/banshee-data/interval.report/internal/pipeline"
	"github.com/banshee-data/interval.report/internal/security"
	"github.com/banshee-data/interval.report/internal/serialio"
	"github.com/banshee-data/interval.report/internal/timeutil"
)

const (
	// DefaultReadTimeout bounds each port read so the loop notices
	// cancellation and silence without busy-polling.
	DefaultReadTimeout = 5 * time.Millisecond

	// DefaultSilenceTimeout is how long the stream may stay silent
	// before the connection is declared lost.
	DefaultSilenceTimeout = 5 * time.Second

	// DefaultBackoffBase and DefaultBackoffCap bound the reconnect
	// delay: base, 2*base, 4*base, ... up to the cap.
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 30 * time.Second

	readBufSize = 4096
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("acquisition already running")

	// ErrSilence marks a connection dropped by the silence watchdog.
	ErrSilence = errors.New("no data inside silence window")
)

// Config configures a Manager.
type Config struct {
	// PortPath is handed to the factory as-is; for real hardware it is
	// the device path.
	PortPath string

	// PortOptions are normalized at construction time.
	PortOptions serialio.PortOptions

	// Factory opens the data port. Required.
	Factory serialio.PortFactory

	// Queue receives decoded intervals. Required.
	Queue *pipeline.Queue

	// ReadTimeout bounds individual reads. DefaultReadTimeout when
	// zero.
	ReadTimeout time.Duration

	// SilenceTimeout is the watchdog window. DefaultSilenceTimeout
	// when zero; negative disables the watchdog, for sources that are
	// legitimately quiet between pulses.
	SilenceTimeout time.Duration

	// BackoffBase and BackoffCap shape reconnect delays. Defaults when
	// zero.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MaxAttempts limits consecutive failed opens before the session
	// gives up. 0 retries forever.
	MaxAttempts int

	// CaptureDir, when set, enables the raw tee: every byte read from
	// the port is appended to capture-<port>-<session>.bin in this
	// directory for offline analysis.
	CaptureDir string

	// Clock defaults to real time.
	Clock timeutil.Clock
}

// Diagnostics is a point-in-time snapshot of the acquisition counters.
type Diagnostics struct {
	SessionID     string `json:"sessionId"`
	Running       bool   `json:"running"`
	Connected     bool   `json:"connected"`
	FramesDecoded uint64 `json:"framesDecoded"`
	FramesDropped uint64 `json:"framesDropped"`
	QueueDepth    int    `json:"queueDepth"`
	QueueDropped  uint64 `json:"queueDropped"`
	BytesRead     uint64 `json:"bytesRead"`
	Connects      uint64 `json:"connects"`
	Disconnects   uint64 `json:"disconnects"`
	LastError     string `json:"lastError,omitempty"`
	CaptureFile   string `json:"captureFile,omitempty"`
}

// Manager runs one acquisition session at a time: open port, read,
// decode, queue, and reconnect on loss until stopped. Counters are
// cumulative over the Manager's lifetime, not per session.
type Manager struct {
	cfg     Config
	queue   *pipeline.Queue
	factory serialio.PortFactory
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})
	decoder *frame.Decoder

	bytesRead   atomic.Uint64
	connects    atomic.Uint64
	disconnects atomic.Uint64
	connected   atomic.Bool

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	session     string
	captureFile string
	lastErr     string
}

// New validates cfg and returns a stopped Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Factory == nil {
		return nil, errors.New("acquisition: port factory is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("acquisition: queue is required")
	}
	opts, err := cfg.PortOptions.Normalize()
	if err != nil {
		return nil, fmt.Errorf("acquisition: %w", err)
	}
	cfg.PortOptions = opts

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	return &Manager{
		cfg:     cfg,
		queue:   cfg.Queue,
		factory: cfg.Factory,
		clock:   cfg.Clock,
		logf:    monitoring.Prefixed("acquisition"),
		decoder: frame.NewDecoder(),
	}, nil
}

// Start begins a new session with a fresh session ID and returns
// immediately. It fails with ErrAlreadyRunning while a session is
// active.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.session = uuid.New().String()
	m.captureFile = ""
	m.lastErr = ""
	done, session := m.done, m.session
	m.mu.Unlock()

	m.logf("session %s starting on %s", session, m.cfg.PortPath)
	go m.run(ctx, done)
	return nil
}

// Stop ends the current session and waits for the read loop to exit.
// Stopping a stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logf("session stopped")
}

// Running reports whether a session is active. A session that ran out
// of connect attempts counts as stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SessionID returns the current (or most recent) session identifier.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CaptureFile returns the raw-capture path for the current session, or
// "" when the tee is disabled.
func (m *Manager) CaptureFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captureFile
}

// Diagnostics snapshots the counters. Decoder and queue counts come
// from their own atomics, so the snapshot is cheap and can be taken
// from any goroutine.
func (m *Manager) Diagnostics() Diagnostics {
	decoded, dropped := m.decoder.Stats()
	m.mu.Lock()
	session, lastErr, captureFile, running := m.session, m.lastErr, m.captureFile, m.running
	m.mu.Unlock()
	return Diagnostics{
		SessionID:     session,
		Running:       running,
		Connected:     m.connected.Load(),
		FramesDecoded: decoded,
		FramesDropped: dropped,
		QueueDepth:    m.queue.Len(),
		QueueDropped:  m.queue.Dropped(),
		BytesRead:     m.bytesRead.Load(),
		Connects:      m.connects.Load(),
		Disconnects:   m.disconnects.Load(),
		LastError:     lastErr,
		CaptureFile:   captureFile,
	}
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// run is the session goroutine: connect with backoff, read until the
// connection drops, reconnect, until cancelled or out of attempts.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		m.connected.Store(false)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		port, err := m.factory.Open(m.cfg.PortPath, m.cfg.PortOptions)
		if err != nil {
			attempt++
			m.setLastErr(err)
			if m.cfg.MaxAttempts > 0 && attempt >= m.cfg.MaxAttempts {
				m.logf("giving up after %d failed connect attempts: %v", attempt, err)
				return
			}
			delay := m.backoff(attempt)
			m.logf("open %s failed (attempt %d): %v; retrying in %v", m.cfg.PortPath, attempt, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(delay):
			}
			continue
		}

		attempt = 0
		m.connects.Add(1)
		m.connected.Store(true)
		m.logf("connected to %s", m.cfg.PortPath)

		err = m.readLoop(ctx, port)
		port.Close()
		m.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		m.disconnects.Add(1)
		m.setLastErr(err)
		m.logf("connection lost: %v", err)
		// Drop any partial frame left from the dead connection; the
		// counters survive.
		m.decoder.Reset()
	}
}

// backoff returns the delay before reconnect attempt n (1-based).
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.BackoffCap {
			return m.cfg.BackoffCap
		}
	}
	if d > m.cfg.BackoffCap {
		d = m.cfg.BackoffCap
	}
	return d
}

// readLoop pumps one connection: bounded reads, decode, queue. It
// returns nil on cancellation and the fatal error otherwise.
func (m *Manager) readLoop(ctx context.Context, port serialio.SerialPorter) error {
	if tp, ok := port.(serialio.TimeoutPorter); ok {
		if err := tp.SetReadTimeout(m.cfg.ReadTimeout); err != nil {
			m.logf("set read timeout: %v", err)
		}
	}
	// Closing the port unblocks a read that has no timeout to bound
	// it, so Stop never waits on a silent line.
	unblock := context.AfterFunc(ctx, func() { port.Close() })
	defer unblock()

	var tee *os.File
	if m.cfg.CaptureDir != "" {
		f, err := m.openCapture()
		if err != nil {
			m.logf("raw capture disabled: %v", err)
		} else {
			tee = f
			defer tee.Close()
		}
	}

	buf := make([]byte, readBufSize)
	lastData := m.clock.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// Timed-out read. Quiet is normal for a counter at
			// background rates, so the watchdog window is long and
			// only bytes reset it.
			if m.cfg.SilenceTimeout > 0 && m.clock.Since(lastData) >= m.cfg.SilenceTimeout {
				return fmt.Errorf("%w (%v)", ErrSilence, m.cfg.SilenceTimeout)
			}
			continue
		}

		lastData = m.clock.Now()
		m.bytesRead.Add(uint64(n))
		if tee != nil {
			if _, err := tee.Write(buf[:n]); err != nil {
				m.logf("raw capture write failed, capture stops here: %v", err)
				tee.Close()
				tee = nil
			}
		}

		if values := m.decoder.Feed(buf[:n]); len(values) > 0 {
			arrival := m.clock.Now()
			for _, v := range values {
				m.queue.Push(pipeline.Item{Value: v, Arrival: arrival})
			}
		}
	}
}

// openCapture creates (or reopens, after a reconnect) the session's
// raw capture file in append mode.
func (m *Manager) openCapture() (*os.File, error) {
	if err := os.MkdirAll(m.cfg.CaptureDir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("capture-%s-%s.bin", security.SanitizeFilename(m.cfg.PortPath), m.SessionID())
	path := filepath.Join(m.cfg.CaptureDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.captureFile = path
	m.mu.Unlock()
	return f, nil
}
