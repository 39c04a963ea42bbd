// Package stats accumulates summary statistics over dispatched
// interval batches: count, min, max, mean, and population standard
// deviation over a bounded sample window, plus event rate as
// counts-per-minute over a sliding 60 s window.
package stats

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/interval.report/internal/pipeline"
	"github.com/banshee-data/interval.report/internal/timeutil"
)

const (
	// DefaultWindowSize bounds the sample window for the moment
	// statistics, so a long-running session cannot grow without limit.
	DefaultWindowSize = 4096

	rateWindow = time.Minute
)

// Snapshot is a point-in-time view of the collected statistics. The
// moment statistics cover the current sample window; TotalCount and
// CPM cover the whole collection.
type Snapshot struct {
	TotalCount  uint64    `json:"totalCount"`
	WindowCount int       `json:"windowCount"`
	MinMicros   float64   `json:"minMicros"`
	MaxMicros   float64   `json:"maxMicros"`
	MeanMicros  float64   `json:"meanMicros"`
	StdevMicros float64   `json:"stdevMicros"`
	CPM         float64   `json:"cpm"`
	LastArrival time.Time `json:"lastArrival"`
}

// Collector consumes interval batches and answers Snapshot queries
// from any goroutine.
type Collector struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	windowSize int
	window     []float64
	next       int
	total      uint64
	arrivals   []time.Time
	started    time.Time
	last       time.Time
}

// NewCollector returns a collector with the given sample window size
// (DefaultWindowSize when zero or negative) on the given clock (real
// time when nil).
func NewCollector(windowSize int, clock timeutil.Clock) *Collector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Collector{
		clock:      clock,
		windowSize: windowSize,
		window:     make([]float64, 0, windowSize),
	}
}

// OnBatch folds one dispatched batch into the statistics. Its
// signature matches pipeline.BatchFunc, so a Collector can be handed
// to the dispatcher directly.
func (c *Collector) OnBatch(batch []pipeline.Item) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range batch {
		v := float64(it.Value)
		if len(c.window) < c.windowSize {
			c.window = append(c.window, v)
		} else {
			c.window[c.next] = v
			c.next = (c.next + 1) % c.windowSize
		}
		c.total++
		c.arrivals = append(c.arrivals, it.Arrival)
		if c.started.IsZero() {
			c.started = it.Arrival
		}
		if it.Arrival.After(c.last) {
			c.last = it.Arrival
		}
	}
	c.pruneLocked(c.clock.Now())
}

// Snapshot computes the current statistics. Moment statistics are
// order-independent, so they run straight over the ring storage.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.pruneLocked(now)

	s := Snapshot{
		TotalCount:  c.total,
		WindowCount: len(c.window),
		LastArrival: c.last,
	}
	if len(c.window) > 0 {
		s.MinMicros = floats.Min(c.window)
		s.MaxMicros = floats.Max(c.window)
		s.MeanMicros = stat.Mean(c.window, nil)
		if len(c.window) > 1 {
			s.StdevMicros = stat.PopStdDev(c.window, nil)
		}
	}
	if n := len(c.arrivals); n > 0 && !c.started.IsZero() {
		// Before a full minute has elapsed, the observed span scales
		// the estimate instead of under-reading against a 60 s
		// denominator.
		span := now.Sub(c.started)
		if span > rateWindow {
			span = rateWindow
		}
		if span < time.Second {
			span = time.Second
		}
		s.CPM = float64(n) * float64(time.Minute) / float64(span)
	}
	return s
}

// Reset clears everything; the next batch starts a fresh collection.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = c.window[:0]
	c.next = 0
	c.total = 0
	c.arrivals = nil
	c.started = time.Time{}
	c.last = time.Time{}
}

// pruneLocked drops rate-window arrivals older than 60 s. Arrivals are
// appended in order, so only a leading run can expire.
func (c *Collector) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(c.arrivals) && c.arrivals[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.arrivals = append(c.arrivals[:0], c.arrivals[i:]...)
	}
}
