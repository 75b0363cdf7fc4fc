package http

import (
	"sync"
	"time"
)

// TokenRateLimiter caps how often a single client may mint connection
// details, keyed by the client token cookie. Sliding window.
type TokenRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewTokenRateLimiter(limit int, interval time.Duration) *TokenRateLimiter {
	return &TokenRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *TokenRateLimiter) Allow(clientToken string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[clientToken]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[clientToken] = fresh
		return false
	}

	rl.history[clientToken] = append(fresh, now)
	return true
}
