// Package middleware provides HTTP middleware shared by the API surface.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/docket/pkg/observability"
)

// RateLimitConfig configures a fixed-window rate limit.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig is the limit applied to unauthenticated callers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig is the limit applied per authenticated user.
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a Redis-backed fixed-window counter, shared across
// instances.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRateLimiter creates a new Redis-backed rate limiter
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{redis: redisClient, config: config, prefix: prefix}
}

// Allow checks whether a request under the key is within the window limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// RateLimitMiddleware applies per-user limits when a principal is present
// and per-IP limits otherwise. Redis errors fail open so the workflow API
// keeps serving when the limiter backend is down.
type RateLimitMiddleware struct {
	userLimiter *RateLimiter
	anonLimiter *RateLimiter
	logger      *observability.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(redisClient *redis.Client, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter: NewRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:user"),
		anonLimiter: NewRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		logger:      logger,
	}
}

// Handler wraps an HTTP handler with rate limiting.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var key string
		var limiter *RateLimiter
		if p := PrincipalFromContext(ctx); p != nil {
			key = "user:" + p.UserID
			limiter = m.userLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.config.WindowDuration.Seconds()))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"RateLimitExceeded","message":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
