package utils

import (
	"sync"
	"time"
)

// Throttle remembers when each key was last let through.
// It is thread-safe and sized for a few hundred keys on a hot path.
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{last: make(map[string]time.Time, 64)}
}

// Allow reports whether key may pass at now. A key passes when it has never
// passed before or when at least interval elapsed since it last did; passing
// records now. With interval <= 0 everything passes and nothing is recorded.
func (t *Throttle) Allow(key string, now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < interval {
		return false
	}
	t.last[key] = now
	return true
}

// Retain drops every key for which keep returns false.
func (t *Throttle) Retain(keep func(key string) bool) {
	t.mu.Lock()
	for k := range t.last {
		if !keep(k) {
			delete(t.last, k)
		}
	}
	t.mu.Unlock()
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
