package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRateLimiter(start time.Time) (*RateLimiter, *time.Time) {
	clock := start
	rl := &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		now:     func() time.Time { return clock },
	}
	return rl, &clock
}

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	rl, _ := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("client-a", 5), "request %d should be admitted", i+1)
	}
	assert.False(t, rl.Allow("client-a", 5))
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl, clock := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 60; i++ {
		require.True(t, rl.Allow("client-a", 60))
	}
	require.False(t, rl.Allow("client-a", 60))

	// At 60/min one token comes back per second.
	*clock = clock.Add(time.Second)
	assert.True(t, rl.Allow("client-a", 60))
	assert.False(t, rl.Allow("client-a", 60))

	*clock = clock.Add(time.Minute)
	for i := 0; i < 60; i++ {
		assert.True(t, rl.Allow("client-a", 60), "request %d after full refill", i+1)
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, _ := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	require.True(t, rl.Allow("client-a", 1))
	require.False(t, rl.Allow("client-a", 1))
	assert.True(t, rl.Allow("client-b", 1))
}

func TestRateLimiter_ZeroLimitDisablesThrottling(t *testing.T) {
	rl, _ := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("client-a", 0))
	}
}

func TestRateLimiter_LoweredLimitClampsTokens(t *testing.T) {
	rl, _ := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	require.True(t, rl.Allow("key-1", 100))

	// An API key override drops the limit to 2; the bucket clamps to the
	// new ceiling instead of keeping the old surplus.
	assert.True(t, rl.Allow("key-1", 2))
	assert.True(t, rl.Allow("key-1", 2))
	assert.False(t, rl.Allow("key-1", 2))
}

func TestRateLimiter_PruneDropsIdleClients(t *testing.T) {
	rl, clock := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	require.True(t, rl.Allow("idle-client", 10))
	require.True(t, rl.Allow("busy-client", 10))

	*clock = clock.Add(6 * time.Minute)
	require.True(t, rl.Allow("busy-client", 10))
	rl.prune()

	stats := rl.GetStats()
	assert.Equal(t, 1, stats["total_clients"])
}

func TestRateLimiter_GetStats(t *testing.T) {
	rl, _ := newTestRateLimiter(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	require.True(t, rl.Allow("client-a", 10))
	require.True(t, rl.Allow("client-a", 10))

	stats := rl.GetStats()
	assert.Equal(t, 1, stats["total_clients"])

	clients, ok := stats["clients"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, clients, 1)
	assert.Equal(t, "client-a", clients[0]["client_id"])
	assert.Equal(t, 8, clients[0]["tokens_remaining"])
	assert.Equal(t, 10, clients[0]["limit_per_minute"])
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", n%3)
			for j := 0; j < 50; j++ {
				rl.Allow(clientID, 30)
			}
		}(i)
	}
	wg.Wait()

	stats := rl.GetStats()
	assert.Equal(t, 3, stats["total_clients"])
}
