package bot

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for per-user rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 5,
		Burst:             2,
		CleanupInterval:   10 * time.Minute,
	}
}

// visitor represents a rate-limited user.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles download requests per user ID.
type RateLimiter struct {
	config   *RateLimitConfig
	visitors map[int64]*visitor
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewRateLimiter creates a RateLimiter with the given configuration.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[int64]*visitor),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupOldEntries()

	return rl
}

// Stop stops the rate limiter's cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow checks whether a request from the given user is admitted.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[userID]
	if !exists {
		ratePerSecond := rate.Limit(float64(rl.config.RequestsPerMinute) / 60.0)
		v = &visitor{
			limiter: rate.NewLimiter(ratePerSecond, rl.config.Burst),
		}
		rl.visitors[userID] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

// cleanupOldEntries periodically removes stale users from the map.
func (rl *RateLimiter) cleanupOldEntries() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-rl.config.CleanupInterval)
	deleted := 0

	for userID, v := range rl.visitors {
		if v.lastSeen.Before(threshold) {
			delete(rl.visitors, userID)
			deleted++
		}
	}

	if deleted > 0 {
		slog.Debug("Rate limiter cleanup",
			"deleted", deleted,
			"remaining", len(rl.visitors),
		)
	}
}
