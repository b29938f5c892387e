package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMFAMaxFailures = 5
	defaultMFAWindow      = 5 * time.Minute
)

var (
	ErrMFARateLimited = errors.New("mfa rate limited")
	ErrMFAUnavailable = errors.New("mfa limiter unavailable")
)

// MFALimiterConfig holds thresholds for the per-user MFA failure limiter.
type MFALimiterConfig struct {
	Prefix      string
	MaxFailures int
	Window      time.Duration
}

// MFALimiter counts failed TOTP and backup codes per user in a fixed
// window. It is independent of the password lockout.
type MFALimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxFailures int64
	window      time.Duration
}

// NewMFALimiter creates an MFA failure limiter. Zero-value fields in cfg
// fall back to defaults (5 failures / 5m).
func NewMFALimiter(redisClient redis.UniversalClient, cfg MFALimiterConfig) *MFALimiter {
	max := cfg.MaxFailures
	if max <= 0 {
		max = defaultMFAMaxFailures
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultMFAWindow
	}
	return &MFALimiter{
		redis:       redisClient,
		prefix:      cfg.Prefix,
		maxFailures: int64(max),
		window:      window,
	}
}

func (l *MFALimiter) key(userID string) string {
	return joinKey(l.prefix, "mfaf", userID)
}

// Check returns ErrMFARateLimited once the window holds MaxFailures.
func (l *MFALimiter) Check(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count >= l.maxFailures {
		return ErrMFARateLimited
	}
	return nil
}

// RecordFailure counts one failure and reports ErrMFARateLimited when it
// reached the limit.
func (l *MFALimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(userID), l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
	}
	if count >= l.maxFailures {
		return ErrMFARateLimited
	}
	return nil
}

// Reset clears the failure counter after a successful code.
func (l *MFALimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}

// IsRateLimited reports whether err is ErrMFARateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrMFARateLimited)
}
