package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobqueue/internal/core"
)

// DefaultRateLimitPrefix namespaces per-user counters.
const DefaultRateLimitPrefix = "rate_limit:"

// FixedWindowLimiterOptions configures a FixedWindowLimiter.
type FixedWindowLimiterOptions struct {
	Client redis.UniversalClient
	Limit  int64
	Window time.Duration
	Prefix string
	Logger *slog.Logger
}

// FixedWindowLimiter counts requests per principal in a window that starts at the
// principal's first counted request. The counter and its expiry are set in one
// MULTI/EXEC so a counter can never be left without a TTL.
type FixedWindowLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	prefix string
	logger *slog.Logger
}

var _ core.RateLimiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter creates a limiter allowing opts.Limit requests per opts.Window.
func NewFixedWindowLimiter(opts FixedWindowLimiterOptions) (*FixedWindowLimiter, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", opts.Limit)
	}
	if opts.Window < time.Second {
		return nil, fmt.Errorf("window must be >= 1s, got %s", opts.Window)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRateLimitPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FixedWindowLimiter{
		client: opts.Client,
		limit:  opts.Limit,
		window: opts.Window,
		prefix: prefix,
		logger: logger.With("component", "rate_limiter"),
	}, nil
}

// Allow counts one request for principalID and reports whether it fits in the current window.
// Rejected requests still count. When Redis cannot be reached the request is refused and the
// error is returned so callers can tell an outage from a real limit.
func (l *FixedWindowLimiter) Allow(ctx context.Context, principalID string) (bool, error) {
	if principalID == "" {
		return false, errors.New("principal id is required")
	}

	key := l.prefix + principalID
	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		// NX keeps the first request's expiry; later requests never extend the window.
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, rejecting request",
			"principal_id", principalID, "error", err)
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	n := count.Val()
	if n > l.limit {
		l.logger.DebugContext(ctx, "rate limit exceeded", "principal_id", principalID, "count", n, "limit", l.limit)
		return false, nil
	}
	return true, nil
}
