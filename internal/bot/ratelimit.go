package bot

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit messages a user may send per window when none is configured
	DefaultRateLimit = 10

	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-sender sliding-window limit. It keeps the
// timestamps of accepted messages inside the window and prunes stale ones
// on every call. Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time
	now      func() time.Time
}

// NewRateLimiter allows at most limit messages per sender within window.
// Non-positive values fall back to DefaultRateLimit and one minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether the sender may send another message and, if so,
// records it
func (r *RateLimiter) Allow(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(senderID, now)
	if len(valid) >= r.limit {
		r.counters[senderID] = valid
		return false
	}
	r.counters[senderID] = append(valid, now)
	return true
}

// Remaining returns how many messages the sender can still send in the
// current window
func (r *RateLimiter) Remaining(senderID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	valid := r.prune(senderID, r.now())
	if len(valid) == 0 {
		delete(r.counters, senderID)
	} else {
		r.counters[senderID] = valid
	}
	if rem := r.limit - len(valid); rem > 0 {
		return rem
	}
	return 0
}

func (r *RateLimiter) prune(senderID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.counters[senderID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
