// Package timing implements the rolling-average timing model (component A
// of the detection core): a bounded buffer of recent non-blind render
// round-trip times feeds an adaptive delay threshold used to decide blind
// probes, with a one-shot variance warning when samples disagree too much.
package timing

import (
	"fmt"
	"sync"
	"time"
)

const bufferCapacity = 5

// seedSample matches the Python deque's cold-start seed of 0.5s, so the
// buffer is never empty. On its own it floors to an average of 0s; it
// weighs into the mean once real samples arrive.
var seedSample = 500 * time.Millisecond

// Model holds the rolling render-time buffer and delay configuration for a
// single detection session.
type Model struct {
	mu      sync.Mutex
	samples []time.Duration

	delay  time.Duration // tm_delay, added to the average for a normal blind decision
	verify time.Duration // tm_verify_delay, added to the average while re-verifying

	variedWarned bool
}

// New builds a Model seeded with one 0.5s sample, as the original does.
func New(delay, verify time.Duration) *Model {
	if delay <= 0 {
		delay = 4 * time.Second
	}
	if verify <= 0 {
		verify = 30 * time.Second
	}
	return &Model{
		samples: []time.Duration{seedSample},
		delay:   delay,
		verify:  verify,
	}
}

// Append records a new non-blind render duration, evicting the oldest
// sample once the buffer exceeds its capacity.
func (m *Model) Append(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, d)
	if len(m.samples) > bufferCapacity {
		m.samples = m.samples[len(m.samples)-bufferCapacity:]
	}
}

// Average returns the integer-second floor of the mean sample, matching the
// original's `int(sum(T)/len(T))` truncation.
func (m *Model) Average() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.average()
}

func (m *Model) average() time.Duration {
	var total time.Duration
	for _, s := range m.samples {
		total += s
	}
	avg := total / time.Duration(len(m.samples))
	return (avg / time.Second) * time.Second
}

// ExpectedDelay returns average + tm_delay, or average + tm_verify_delay
// while blindTest (re-verification) is in progress.
func (m *Model) ExpectedDelay(blindTest bool) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.delay
	if blindTest {
		d = m.verify
	}
	return m.average() + d
}

// VarianceWarn reports whether the current sample spread exceeds the active
// delay budget, and if so returns a one-shot warning message (empty string
// on subsequent calls or when variance is within budget).
func (m *Model) VarianceWarn(blindTest bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.variedWarned {
		return ""
	}
	if len(m.samples) == 0 {
		return ""
	}
	lo, hi := m.samples[0], m.samples[0]
	for _, s := range m.samples {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	d := m.delay
	if blindTest {
		d = m.verify
	}
	if hi-lo > d {
		m.variedWarned = true
		return fmt.Sprintf("timing varies too much (spread %s exceeds delay budget %s); "+
			"increase the timing to avoid false positives", hi-lo, d)
	}
	return ""
}
