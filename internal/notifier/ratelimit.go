package notifier

import (
	"sync"
	"time"
)

// RateLimiter implements a sliding-window rate limiter for per-user
// notification sends, retargeted from the teacher's
// internal/services/ratelimit.RateLimiter (there keyed by wallet id for
// password attempts) to per-(user,kind) notification counts.
//
// Reserve is used instead of a check-then-send pattern: the attempt is
// recorded atomically with the allow decision, so two concurrent sends for
// the same user cannot both observe capacity and both proceed (spec.md
// §9 open question i: reserve-before-consume).
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	attempts    map[string][]time.Time
	mu          sync.Mutex
}

// NewRateLimiter creates a limiter allowing maxAttempts sends per window,
// per (user, kind) key.
func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string][]time.Time),
	}
}

// Reserve attempts to record one send for key ("user:kind"), returning
// false if the sliding window is already at capacity.
func (rl *RateLimiter) Reserve(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	existing := rl.attempts[key]
	valid := make([]time.Time, 0, len(existing))
	for _, ts := range existing {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.maxAttempts {
		rl.attempts[key] = valid
		return false
	}

	rl.attempts[key] = append(valid, now)
	return true
}

// Remaining reports how many sends are left in the current window for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	count := 0
	for _, ts := range rl.attempts[key] {
		if now.Sub(ts) < rl.window {
			count++
		}
	}
	remaining := rl.maxAttempts - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears rate-limit state for key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}
