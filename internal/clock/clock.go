// Package clock supplies time to the rest of the harness.
//
// Production code uses Real. Tests inject a Manual clock so that stage
// resolution and phase routing can be checked without real time passing.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Real is the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual creates a manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// RunClock records the instant a run started. It is created once and is
// read-only afterwards, so it can be shared freely between workers.
type RunClock struct {
	source    Clock
	startedAt time.Time
}

// Start creates a RunClock anchored at source.Now().
func Start(source Clock) *RunClock {
	if source == nil {
		source = Real{}
	}
	return &RunClock{source: source, startedAt: source.Now()}
}

// StartedAt returns the run start time.
func (r *RunClock) StartedAt() time.Time {
	return r.startedAt
}

// Now returns the current time from the underlying source.
func (r *RunClock) Now() time.Time {
	return r.source.Now()
}

// Elapsed returns the time since the run started. Never negative.
func (r *RunClock) Elapsed() time.Duration {
	d := r.source.Now().Sub(r.startedAt)
	if d < 0 {
		return 0
	}
	return d
}
