package network

import (
	"sync"
	"time"
)

// RateLimiter throttles request rates per identity with a sliding window.
// Timestamps older than the window are pruned on every check, so memory per
// active identity is bounded by the window capacity.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[int64][]time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = 5 * time.Second
	}
	if max <= 0 {
		max = 10
	}

	return &RateLimiter{
		window: window,
		max:    max,
		hits:   make(map[int64][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the identity may proceed, recording the request
// timestamp when it may. A denied request is not recorded.
func (rl *RateLimiter) Allow(identityID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	recent := rl.hits[identityID][:0]
	for _, ts := range rl.hits[identityID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rl.max {
		rl.hits[identityID] = recent
		return false
	}

	rl.hits[identityID] = append(recent, now)
	return true
}

// Forget drops the tracked window for an identity
func (rl *RateLimiter) Forget(identityID int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.hits, identityID)
}
