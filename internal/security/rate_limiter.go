// Package security implements the resolver's listener-boundary defenses:
// per-source-IP rate limiting and client-subnet filtering. Neither ever
// changes a wire-visible response — they only decide whether a query
// reaches a Processor at all.
package security

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// sourceState is the per-source-IP bucket tracked by RateLimiter.
type sourceState struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	penaltyUntil time.Time
	lastSeen     time.Time
}

// RateLimiter enforces a per-source-IP query budget using a token bucket
// per source, capped to a bounded number of tracked sources. A source
// that exceeds its budget is dropped outright for a cooldown period
// rather than merely throttled back down to the steady rate.
type RateLimiter struct {
	threshold int           // token bucket rate and burst, in queries/second
	cooldown  time.Duration // how long a source is dropped once it exceeds threshold
	cache     *lru.Cache[string, *sourceState]
}

// NewRateLimiter creates a rate limiter enforcing threshold queries/second
// per source IP, a cooldown period once exceeded, and a bound on the
// number of distinct sources tracked at once. Once that bound is reached,
// the least recently used source is evicted to make room.
func NewRateLimiter(threshold int, cooldown time.Duration, maxEntries int) *RateLimiter {
	cache, err := lru.New[string, *sourceState](maxEntries)
	if err != nil {
		// Only returns an error for a non-positive size, which Validate
		// rejects before a RateLimiter is ever constructed.
		cache, _ = lru.New[string, *sourceState](1)
	}

	return &RateLimiter{
		threshold: threshold,
		cooldown:  cooldown,
		cache:     cache,
	}
}

// Allow reports whether a query from sourceIP should be serviced. It
// returns false while sourceIP is under cooldown or once its token bucket
// is exhausted, starting a fresh cooldown in the latter case.
func (rl *RateLimiter) Allow(sourceIP string) bool {
	state, ok := rl.cache.Get(sourceIP)
	if !ok {
		state = &sourceState{
			limiter: rate.NewLimiter(rate.Limit(rl.threshold), rl.threshold),
		}
		rl.cache.Add(sourceIP, state)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	state.lastSeen = now

	if !state.penaltyUntil.IsZero() && now.Before(state.penaltyUntil) {
		return false
	}
	state.penaltyUntil = time.Time{}

	if !state.limiter.AllowN(now, 1) {
		state.penaltyUntil = now.Add(rl.cooldown)
		return false
	}

	return true
}

// Cleanup removes sources not seen in the last minute. The LRU cache
// already bounds memory under load; this reclaims space from sources
// that went idle well before the cache filled up. Intended to be called
// periodically (e.g. every 5 minutes).
func (rl *RateLimiter) Cleanup() {
	now := time.Now()

	for _, ip := range rl.cache.Keys() {
		state, ok := rl.cache.Peek(ip)
		if !ok {
			continue
		}

		state.mu.Lock()
		idle := now.Sub(state.lastSeen) > time.Minute
		state.mu.Unlock()

		if idle {
			rl.cache.Remove(ip)
		}
	}
}
