// Package perfmon samples publish timings for diagnostics.
//
// Monitoring is off by default. When enabled, every publish records the
// time since the previous publish and its own duration into a ring of the
// last RingSize samples. Writers never wait: a contended monitor drops the
// sample.
package perfmon

import (
	"encoding/json"
	"sync"
	"time"
)

// RingSize is the number of samples kept between two snapshots.
const RingSize = 256

// Sample is one publish timing.
type Sample struct {
	// MicrosSinceLastEvent is nil for the first sample after enabling.
	MicrosSinceLastEvent *int64 `json:"micros_since_last_event"`

	// PublishMicros is the duration of the publish.
	PublishMicros int64 `json:"push_event_micros"`
}

type ring struct {
	buf     [RingSize]Sample
	next    int
	wrapped bool
}

func (r *ring) reset() {
	r.next = 0
	r.wrapped = false
}

func (r *ring) push(s Sample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % RingSize
	if r.next == 0 {
		r.wrapped = true
	}
}

// samples returns the contents oldest first.
func (r *ring) samples() []Sample {
	out := make([]Sample, 0, RingSize)
	if r.wrapped {
		out = append(out, r.buf[r.next:]...)
	}
	return append(out, r.buf[:r.next]...)
}

// Monitor is a double-buffered sample recorder. Writers fill the back ring;
// Snapshot swaps the rings and serialises the one just filled.
type Monitor struct {
	mu        sync.Mutex
	enabled   bool
	rings     [2]ring
	back      *ring
	front     *ring
	lastEvent time.Time

	// Serialises readers so the front ring is not swapped mid-read.
	readMu sync.Mutex
}

// New returns a disabled monitor.
func New() *Monitor {
	m := &Monitor{}
	m.back = &m.rings[0]
	m.front = &m.rings[1]
	return m
}

// Enable turns sampling on or off. Turning it on discards pending samples.
func (m *Monitor) Enable(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
	if on {
		m.back.reset()
		m.lastEvent = time.Time{}
	}
}

// Enabled reports whether sampling is on.
func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Timing measures one publish. A nil Timing is valid and records nothing.
type Timing struct {
	m      *Monitor
	start  time.Time
	sample Sample
}

// Begin starts timing a publish. It returns nil when monitoring is off or
// the monitor is contended.
func (m *Monitor) Begin() *Timing {
	if !m.mu.TryLock() {
		return nil
	}
	defer m.mu.Unlock()
	if !m.enabled {
		return nil
	}

	t := &Timing{m: m, start: time.Now()}
	if !m.lastEvent.IsZero() {
		since := t.start.Sub(m.lastEvent).Microseconds()
		t.sample.MicrosSinceLastEvent = &since
	}
	m.lastEvent = t.start
	return t
}

// Done records the publish duration.
func (t *Timing) Done() {
	if t == nil {
		return
	}
	t.sample.PublishMicros = time.Since(t.start).Microseconds()
	t.m.Record(t.sample)
}

// Record adds s unless monitoring is off or the monitor is contended.
func (m *Monitor) Record(s Sample) {
	if !m.mu.TryLock() {
		return
	}
	defer m.mu.Unlock()
	if m.enabled {
		m.back.push(s)
	}
}

// Samples swaps the rings and returns the samples recorded since the last
// call, oldest first. ok is false when monitoring is off.
func (m *Monitor) Samples() (samples []Sample, ok bool) {
	m.readMu.Lock()
	defer m.readMu.Unlock()

	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return nil, false
	}
	m.back, m.front = m.front, m.back
	m.back.reset()
	filled := m.front
	m.mu.Unlock()

	return filled.samples(), true
}

// Snapshot returns the samples as a JSON array, or JSON null when
// monitoring is off.
func (m *Monitor) Snapshot() (json.RawMessage, error) {
	samples, ok := m.Samples()
	if !ok {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(samples)
}
