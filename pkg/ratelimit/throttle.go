package ratelimit

import (
	"sync"
	"time"
)

// throttleEntry tracks authentication failures for one IP.
type throttleEntry struct {
	mu             sync.Mutex
	failures       int
	lastFailure    time.Time
	throttledUntil time.Time
	removed        bool
}

func (e *throttleEntry) active(now time.Time) bool {
	return !e.throttledUntil.IsZero() && now.Before(e.throttledUntil)
}

func (e *throttleEntry) elapsed(now time.Time) bool {
	return !e.throttledUntil.IsZero() && !now.Before(e.throttledUntil)
}

// stale reports whether an unthrottled counter has outlived window.
func (e *throttleEntry) stale(now time.Time, window time.Duration) bool {
	if window <= 0 || !e.throttledUntil.IsZero() {
		return false
	}
	return now.Sub(e.lastFailure) >= window
}
