package calls

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Throttle admits at most limit attempts in any trailing window.
// Timestamps live in a fixed ring of size limit; only admitted attempts are recorded.
// It belongs to a single connection and is not safe for concurrent use.
type Throttle struct {
	clock  clock.Clock
	window time.Duration
	ring   []time.Time
	head   int
	count  int
}

// NewThrottle returns a throttle; a non-positive limit admits everything.
func NewThrottle(clk clock.Clock, limit int, window time.Duration) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	if limit < 0 {
		limit = 0
	}
	return &Throttle{clock: clk, window: window, ring: make([]time.Time, limit)}
}

func (t *Throttle) Allow() bool {
	if len(t.ring) == 0 {
		return true
	}
	now := t.clock.Now()
	windowStart := now.Add(-t.window)
	for t.count > 0 && !t.ring[t.head].After(windowStart) {
		t.head = (t.head + 1) % len(t.ring)
		t.count--
	}
	if t.count >= len(t.ring) {
		return false
	}
	t.ring[(t.head+t.count)%len(t.ring)] = now
	t.count++
	return true
}
