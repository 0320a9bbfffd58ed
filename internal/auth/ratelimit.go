package auth

import (
	"sync"
	"time"
)

// tokenBucket throttles one client. The bucket holds at most `limit`
// tokens and refills continuously at limit tokens per minute; each
// admitted request spends one token.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	limit    int
	lastFill time.Time
	lastSeen time.Time
}

func (tb *tokenBucket) take(limit int, now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if limit != tb.limit {
		// Limit changed (per-key overrides); clamp to the new ceiling.
		tb.limit = limit
		if tb.tokens > float64(limit) {
			tb.tokens = float64(limit)
		}
	}

	elapsed := now.Sub(tb.lastFill).Minutes()
	if elapsed > 0 {
		tb.tokens += elapsed * float64(limit)
		if tb.tokens > float64(limit) {
			tb.tokens = float64(limit)
		}
		tb.lastFill = now
	}
	tb.lastSeen = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// RateLimiter throttles clients with per-client token buckets. Idle
// buckets are pruned in the background.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	now     func() time.Time
}

var (
	globalRateLimiter *RateLimiter
	rateLimiterOnce   sync.Once
)

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
	go rl.pruneLoop()
	return rl
}

// Allow reports whether the client may make a request under the given
// per-minute limit and, if so, spends one token.
func (rl *RateLimiter) Allow(clientID string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.RLock()
	bucket, ok := rl.buckets[clientID]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		bucket, ok = rl.buckets[clientID]
		if !ok {
			bucket = &tokenBucket{
				tokens:   float64(limitPerMinute),
				limit:    limitPerMinute,
				lastFill: now,
			}
			rl.buckets[clientID] = bucket
		}
		rl.mu.Unlock()
	}

	return bucket.take(limitPerMinute, now)
}

// prune drops buckets that have been idle long enough to be full again.
func (rl *RateLimiter) prune() {
	cutoff := rl.now().Add(-5 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, bucket := range rl.buckets {
		bucket.mu.Lock()
		idle := bucket.lastSeen.Before(cutoff)
		bucket.mu.Unlock()
		if idle {
			delete(rl.buckets, clientID)
		}
	}
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.prune()
	}
}

// GetStats reports the current throttling state for the admin endpoint.
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	clients := make([]map[string]interface{}, 0, len(rl.buckets))
	for clientID, bucket := range rl.buckets {
		bucket.mu.Lock()
		clients = append(clients, map[string]interface{}{
			"client_id":        clientID,
			"tokens_remaining": int(bucket.tokens),
			"limit_per_minute": bucket.limit,
			"last_request":     bucket.lastSeen,
		})
		bucket.mu.Unlock()
	}

	return map[string]interface{}{
		"total_clients": len(rl.buckets),
		"clients":       clients,
	}
}

// GetGlobalRateLimiter returns the process-wide limiter shared by all
// middleware instances.
func GetGlobalRateLimiter() *RateLimiter {
	rateLimiterOnce.Do(func() {
		globalRateLimiter = NewRateLimiter()
	})
	return globalRateLimiter
}

// CheckRateLimit admits or rejects a request against the global limiter.
func CheckRateLimit(clientID string, limitPerMinute int) bool {
	return GetGlobalRateLimiter().Allow(clientID, limitPerMinute)
}

// GetRateLimitStats reads stats from the global limiter.
func GetRateLimitStats() map[string]interface{} {
	return GetGlobalRateLimiter().GetStats()
}
