// Package simulator implements an in-process stand-in for the
// detector. A seeded Poisson pulse source drives the same capture,
// debounce, and framing path the firmware uses, and an ASCII command
// handler tracks device settings the way the real tube interface does.
// Dev mode and higher-level tests run against its two ports exactly as
// they would against a serial device; optional noise injection
// corrupts the data stream to exercise decoder resynchronization.
package simulator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/interval.report/internal/capture"
	"github.com/banshee-data/interval.report/internal/gmproto"
	"github.com/banshee-data/interval.report/internal/timeutil"
)

const (
	// DefaultMeanRate is the default pulse rate in pulses per second,
	// around what a modestly active check source produces.
	DefaultMeanRate = 20.0

	// minPulseGap is the shortest inter-pulse gap the source will
	// generate. It stands in for tube dead time and keeps every
	// simulated interval above the debounce threshold.
	minPulseGap = 80 * time.Microsecond

	deviceVersion   = "gm-sim 1.0.0"
	deviceCopyright = "(C) interval.report simulated GM interface"

	// invalidResponse is what the firmware answers to input it cannot
	// parse. The host driver checks for it verbatim.
	invalidResponse = "invalid"
)

// Config configures a Simulator. The zero value is usable.
type Config struct {
	// MeanRate is the average pulse rate in pulses per second.
	// DefaultMeanRate when zero.
	MeanRate float64

	// Debounce is the interval filter threshold in microseconds.
	// capture.DefaultDebounceMicros when zero.
	Debounce uint32

	// NoiseProb is the per-byte probability of corrupting data-stream
	// output. Zero disables noise injection.
	NoiseProb float64

	// Seed seeds the pulse and noise generator. Time-based when zero,
	// so two unseeded simulators do not emit identical streams.
	Seed int64

	// RingSize is the capture ring capacity, capture.DefaultRingSize
	// when zero. Must be a power of two.
	RingSize int

	// Clock drives measurement timing. Real time when nil.
	Clock timeutil.Clock
}

// State is a snapshot of the simulated device settings and counters.
type State struct {
	Voltage      int
	Repeat       bool
	Counting     bool
	CountTime    int
	Stream       int
	SpeakerPulse bool
	SpeakerReady bool
	Count        uint64
	LastCount    uint64
}

// Simulator is a virtual detector. Commands arrive through
// CommandPort, framed intervals leave through DataPort, and Run drives
// the pulse source until its context is cancelled.
//
// The pulse path (rng, virtual microsecond clock, capture, emitter) is
// single-goroutine: Run owns it, and tests that call advance directly
// must not run it concurrently.
type Simulator struct {
	meanRate float64
	clock    timeutil.Clock

	rng     *rand.Rand
	micros  uint32
	cap     *capture.Capture
	emitter *capture.Emitter
	noise   *corruptingWriter

	dataPort *Port
	cmdPort  *Port

	cmdMu  sync.Mutex
	cmdBuf bytes.Buffer

	stateMu   sync.Mutex
	st        State
	startedAt time.Time

	wake chan struct{}
}

// New returns a simulator for the given config.
func New(cfg Config) (*Simulator, error) {
	rate := cfg.MeanRate
	if rate <= 0 {
		rate = DefaultMeanRate
	}
	threshold := cfg.Debounce
	if threshold == 0 {
		threshold = capture.DefaultDebounceMicros
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	cp, err := capture.New(capture.Config{RingSize: cfg.RingSize})
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		meanRate: rate,
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
		cap:      cp,
		dataPort: newPort(nil),
		wake:     make(chan struct{}, 1),
		st: State{
			Voltage:   500,
			CountTime: gmproto.CountTime10s,
		},
	}
	s.cmdPort = newPort(s.feedCommand)
	s.noise = &corruptingWriter{
		w:    pushWriter{s.dataPort},
		rng:  s.rng,
		prob: cfg.NoiseProb,
	}
	s.emitter = capture.NewEmitter(cp, capture.NewIntervalFilter(threshold), s.noise)
	return s, nil
}

// DataPort returns the host side of the binary interval stream.
func (s *Simulator) DataPort() *Port { return s.dataPort }

// CommandPort returns the host side of the ASCII command channel.
func (s *Simulator) CommandPort() *Port { return s.cmdPort }

// State returns a snapshot of the device settings and counters.
func (s *Simulator) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.st
}

// FramesEmitted reports the number of frames written to the data port,
// counted before noise injection.
func (s *Simulator) FramesEmitted() uint64 {
	return s.emitter.Emitted()
}

// CorruptedBytes reports how many data-stream bytes noise injection
// has replaced.
func (s *Simulator) CorruptedBytes() uint64 {
	return s.noise.corrupted.Load()
}

// Run generates pulses until ctx is cancelled. While counting is off
// it idles; the s1 command wakes it. It returns ctx.Err().
func (s *Simulator) Run(ctx context.Context) error {
	for {
		if !s.counting() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		delta := s.nextDelta()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delta):
			s.advance(delta)
		case <-s.wake:
			// Settings changed mid-gap; re-evaluate before pulsing.
		}
	}
}

func (s *Simulator) counting() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.st.Counting
}

// nextDelta draws the next inter-pulse gap: exponential inter-arrival
// times give a Poisson pulse process, floored at the dead-time gap.
func (s *Simulator) nextDelta() time.Duration {
	d := time.Duration(s.rng.ExpFloat64() / s.meanRate * float64(time.Second))
	if d < minPulseGap {
		d = minPulseGap
	}
	return d
}

// advance records one pulse delta microseconds after the previous one,
// or completes the measurement if its count-time window has expired.
func (s *Simulator) advance(delta time.Duration) {
	s.stateMu.Lock()
	if !s.st.Counting {
		s.stateMu.Unlock()
		return
	}
	if secs, err := gmproto.CountTimeSeconds(s.st.CountTime); err == nil && secs > 0 {
		if s.clock.Since(s.startedAt) >= time.Duration(secs)*time.Second {
			s.completeLocked()
			s.stateMu.Unlock()
			return
		}
	}
	s.st.Count++
	s.stateMu.Unlock()

	s.micros += uint32(delta.Microseconds())
	s.cap.TickAt(s.micros)
	// The push writer cannot fail, so a flush error is unreachable.
	s.emitter.Flush()
}

// completeLocked ends the current measurement: emit the on-ready
// readout if a stream mode asked for one, then either stop or, in
// repeat mode, start the next measurement immediately.
func (s *Simulator) completeLocked() {
	if s.st.Stream == gmproto.StreamOnReady || s.st.Stream == gmproto.StreamNowThenReady {
		s.cmdPort.push([]byte(s.readoutLocked() + "\n"))
	}
	s.st.Counting = false
	if s.st.Repeat {
		s.startLocked()
	}
}

func (s *Simulator) startLocked() {
	if s.st.Counting {
		return
	}
	s.st.LastCount = s.st.Count
	s.st.Count = 0
	s.st.Counting = true
	s.startedAt = s.clock.Now()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulator) stopLocked() {
	s.st.Counting = false
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// feedCommand is the command port's sink: it accumulates host bytes,
// splits them into lines, and answers each one.
func (s *Simulator) feedCommand(b []byte) {
	s.cmdMu.Lock()
	s.cmdBuf.Write(b)
	var lines []string
	for {
		i := bytes.IndexByte(s.cmdBuf.Bytes(), '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSpace(string(s.cmdBuf.Next(i+1))))
	}
	s.cmdMu.Unlock()

	for _, line := range lines {
		if line == "" {
			continue
		}
		if resp, ok := s.handleLine(line); ok {
			s.cmdPort.push([]byte(resp + "\n"))
		}
	}
}

// handleLine executes one command line and returns the response, if
// the command produces one.
func (s *Simulator) handleLine(line string) (string, bool) {
	cmd, err := gmproto.Parse(line)
	if err != nil {
		return invalidResponse, true
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	// Mid-measurement the firmware honours only the stop command and
	// ignores everything else, queries included.
	if s.st.Counting && !(cmd.Letter == 's' && cmd.HasParam && cmd.Param == 0) {
		return "", false
	}

	if !cmd.HasParam {
		switch cmd.Letter {
		case 'w':
			s.st.Count = 0
			s.st.LastCount = 0
			return "", false
		case 'c':
			return deviceCopyright, true
		case 'v':
			return deviceVersion, true
		default:
			// A bare setting letter echoes the current value.
			return strconv.Itoa(s.settingLocked(cmd.Letter)), true
		}
	}

	switch cmd.Letter {
	case 'b':
		s.st.Stream = cmd.Param
		if cmd.Param == gmproto.StreamNow || cmd.Param == gmproto.StreamNowThenReady {
			return s.readoutLocked(), true
		}
	case 'j':
		s.st.Voltage = cmd.Param
	case 'o':
		s.st.Repeat = cmd.Param == 1
	case 's':
		if cmd.Param == 1 {
			s.startLocked()
		} else {
			s.stopLocked()
		}
	case 'U':
		s.st.SpeakerPulse = cmd.Param&1 != 0
		s.st.SpeakerReady = cmd.Param&2 != 0
	case 'f':
		s.st.CountTime = cmd.Param
	}
	return "", false
}

func (s *Simulator) settingLocked(letter byte) int {
	switch letter {
	case 'b':
		return s.st.Stream
	case 'j':
		return s.st.Voltage
	case 'o':
		return boolInt(s.st.Repeat)
	case 's':
		return boolInt(s.st.Counting)
	case 'U':
		return boolInt(s.st.SpeakerPulse) | boolInt(s.st.SpeakerReady)<<1
	case 'f':
		return s.st.CountTime
	default:
		return 0
	}
}

// readoutLocked renders the b-command data line:
// count,last_count,counting_time,repeat,progress,voltage, with the
// firmware's trailing separator.
func (s *Simulator) readoutLocked() string {
	secs, err := gmproto.CountTimeSeconds(s.st.CountTime)
	if err != nil {
		secs = 0
	}
	progress := 0
	if s.st.Counting && secs > 0 {
		elapsed := s.clock.Since(s.startedAt)
		progress = int(elapsed.Seconds() / float64(secs) * 100)
		if progress > 100 {
			progress = 100
		}
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d,",
		s.st.Count, s.st.LastCount, secs, boolInt(s.st.Repeat), progress, s.st.Voltage)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// corruptingWriter replaces bytes with random ones at a fixed
// probability before forwarding, leaving the input untouched.
type corruptingWriter struct {
	w         io.Writer
	rng       *rand.Rand
	prob      float64
	corrupted atomic.Uint64
}

func (cw *corruptingWriter) Write(b []byte) (int, error) {
	if cw.prob <= 0 {
		return cw.w.Write(b)
	}
	out := make([]byte, len(b))
	copy(out, b)
	for i := range out {
		if cw.rng.Float64() < cw.prob {
			out[i] = byte(cw.rng.Intn(256))
			cw.corrupted.Add(1)
		}
	}
	return cw.w.Write(out)
}
