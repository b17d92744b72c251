// Package alert debounces and records disease alerts.
package alert

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum elapsed time between two accepted alerts on
// the same channel.
const DefaultWindow = 30 * time.Second

// Throttle is a per-channel debounce gate. A channel may fire at most once
// per window; the check and the timestamp update are atomic so the gate is
// safe when several camera sessions share one instance.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewThrottle creates a throttle with the given debounce window.
func NewThrottle(window time.Duration) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttle{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// TryAcquire reports whether the channel may fire at the given instant.
// When it returns true the channel's lastEmittedAt is advanced to now;
// when it returns false no state changes.
func (t *Throttle) TryAcquire(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) <= t.window {
		return false
	}
	t.last[key] = now
	return true
}
