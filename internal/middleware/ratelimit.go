package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
)

// RateLimiterConfig holds the per-client limits for credential submissions.
type RateLimiterConfig struct {
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
}

// RateLimiterConfigFrom derives the limits from AUTH_RATE_PER_MINUTE and AUTH_RATE_BURST.
func RateLimiterConfigFrom(cfg *config.Config) RateLimiterConfig {
	perMinute := cfg.AuthRatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.AuthRateBurst
	if burst <= 0 {
		burst = 1
	}
	return RateLimiterConfig{
		Rate:            rate.Limit(float64(perMinute) / 60.0),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	config RateLimiterConfig
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts the background cleanup of idle clients.
func NewRateLimiter(config RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware answers 429 with Retry-After once a client exceeds its budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.limiterFor(ip).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rl.config.Rate)))
			rl.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.FullPath()))
			common.RespondWithError(c, common.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// ClientCount is the number of clients currently tracked.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}
	cl := &clientLimiter{
		limiter:    rate.NewLimiter(rl.config.Rate, rl.config.Burst),
		lastAccess: time.Now(),
	}
	rl.limiters[key] = cl
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops clients idle for more than two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	sec := int(math.Ceil(1.0 / float64(r)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
