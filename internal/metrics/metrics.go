// Package metrics implements the in-memory counters, gauges and circular
// time-series behind the admin metrics surface, plus the periodic snapshot
// collector.
package metrics

import (
	"sync"
	"time"
)

// Counter is a monotonic non-negative counter.
type Counter struct {
	mu    sync.Mutex
	value int64
}

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

// Add increments by n (negative deltas are ignored).
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.mu.Lock()
	c.value += n
	c.mu.Unlock()
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Reset restores the counter to zero.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.value = 0
	c.mu.Unlock()
}

// Gauge tracks a current value plus its running min and max.
type Gauge struct {
	mu      sync.Mutex
	value   float64
	min     float64
	max     float64
	tracked bool
}

// Set replaces the current value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	if !g.tracked || v < g.min {
		g.min = v
	}
	if !g.tracked || v > g.max {
		g.max = v
	}
	g.tracked = true
	g.mu.Unlock()
}

// Inc adds one to the current value.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one from the current value.
func (g *Gauge) Dec() { g.Add(-1) }

// Add shifts the current value by delta. The new value and the min/max
// bookkeeping land in one critical section; concurrent deltas must not
// interleave with each other or with Set.
func (g *Gauge) Add(delta float64) {
	g.mu.Lock()
	v := g.value + delta
	g.value = v
	if !g.tracked || v < g.min {
		g.min = v
	}
	if !g.tracked || v > g.max {
		g.max = v
	}
	g.tracked = true
	g.mu.Unlock()
}

// Value returns the current value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Min returns the lowest value seen since the last reset.
func (g *Gauge) Min() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.min
}

// Max returns the highest value seen since the last reset.
func (g *Gauge) Max() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

// Reset restores the gauge to its initial state.
func (g *Gauge) Reset() {
	g.mu.Lock()
	g.value = 0
	g.min = 0
	g.max = 0
	g.tracked = false
	g.mu.Unlock()
}

// Point is one (timestamp, value) sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CircularTimeSeries is a fixed-capacity ring of samples with O(1) insert
// and chronological read-out.
type CircularTimeSeries struct {
	mu     sync.Mutex
	points []Point
	head   int
	size   int
}

// NewCircularTimeSeries creates a series holding up to capacity samples.
func NewCircularTimeSeries(capacity int) *CircularTimeSeries {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularTimeSeries{points: make([]Point, capacity)}
}

// Record appends a sample stamped now, overwriting the oldest when full.
func (s *CircularTimeSeries) Record(value float64) {
	s.RecordAt(time.Now(), value)
}

// RecordAt appends a sample with an explicit timestamp.
func (s *CircularTimeSeries) RecordAt(ts time.Time, value float64) {
	s.mu.Lock()
	s.points[s.head] = Point{Timestamp: ts, Value: value}
	s.head = (s.head + 1) % len(s.points)
	if s.size < len(s.points) {
		s.size++
	}
	s.mu.Unlock()
}

// Size returns min(writes, capacity).
func (s *CircularTimeSeries) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// GetAll returns the buffered samples in chronological order.
func (s *CircularTimeSeries) GetAll() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Point, 0, s.size)
	start := s.head - s.size
	if start < 0 {
		start += len(s.points)
	}
	for i := 0; i < s.size; i++ {
		out = append(out, s.points[(start+i)%len(s.points)])
	}
	return out
}

// Reset empties the series.
func (s *CircularTimeSeries) Reset() {
	s.mu.Lock()
	s.head = 0
	s.size = 0
	s.mu.Unlock()
}

// ErrorCounter counts errors keyed by kind.
type ErrorCounter struct {
	mu     sync.Mutex
	byKind map[string]int64
}

// NewErrorCounter creates an empty error counter.
func NewErrorCounter() *ErrorCounter {
	return &ErrorCounter{byKind: make(map[string]int64)}
}

// Inc counts one error of the given kind.
func (e *ErrorCounter) Inc(kind string) {
	e.mu.Lock()
	e.byKind[kind]++
	e.mu.Unlock()
}

// Total returns the sum over all kinds.
func (e *ErrorCounter) Total() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total int64
	for _, n := range e.byKind {
		total += n
	}
	return total
}

// ByKind returns a copy of the per-kind counts.
func (e *ErrorCounter) ByKind() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int64, len(e.byKind))
	for k, v := range e.byKind {
		out[k] = v
	}
	return out
}

// Reset clears all kinds.
func (e *ErrorCounter) Reset() {
	e.mu.Lock()
	e.byKind = make(map[string]int64)
	e.mu.Unlock()
}
