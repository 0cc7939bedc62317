package telemetry

import (
	"sync"
	"time"
)

// RateLimiter lets one event through per interval and counts the ones it
// holds back, so a log line can say how many were suppressed
type RateLimiter struct {
	interval   time.Duration
	lastTime   time.Time
	suppressed int
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether an event may pass. When it does, the number of
// events suppressed since the previous pass is returned and reset.
func (r *RateLimiter) Allow() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.lastTime.IsZero() || now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		suppressed := r.suppressed
		r.suppressed = 0
		return true, suppressed
	}
	r.suppressed++
	return false, 0
}
