package monitor

import "time"

// MinStaleThreshold is the floor for StaleThreshold.
const MinStaleThreshold = 5 * time.Second

// StaleThreshold is max(5s, 3 * interval).
func StaleThreshold(interval time.Duration) time.Duration {
	if t := 3 * interval; t > MinStaleThreshold {
		return t
	}
	return MinStaleThreshold
}

// IsStale reports whether a variable last updated at last (ok=false if never)
// has gone quiet for longer than its threshold.
func IsStale(last time.Time, ok bool, interval time.Duration, now time.Time) bool {
	if !ok {
		return true
	}
	return now.Sub(last) > StaleThreshold(interval)
}
