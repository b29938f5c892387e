package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix           string
	EnableIPThrottle bool
	MaxLoginPerIP    int
	LoginWindow      time.Duration
	MaxSignupPerIP   int
	SignupWindow     time.Duration
}

// Limiter enforces per-IP limits on failed logins and signups using Redis
// fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) active(ip string) bool {
	return l != nil && l.redis != nil && l.config.EnableIPThrottle && ip != ""
}

// CheckLogin returns ErrRateLimited once ip used up its failed-login
// budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, ip string) error {
	if !l.active(ip) {
		return nil
	}
	return l.checkCounter(ctx, l.loginKey(ip), l.config.MaxLoginPerIP)
}

// IncrementLogin records a failed login from ip.
func (l *Limiter) IncrementLogin(ctx context.Context, ip string) error {
	if !l.active(ip) {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.loginKey(ip), l.config.LoginWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginPerIP) {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the failed-login counter for ip.
func (l *Limiter) ResetLogin(ctx context.Context, ip string) error {
	if !l.active(ip) {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// HitSignup counts one signup attempt from ip and returns ErrRateLimited
// when the window budget is exceeded.
func (l *Limiter) HitSignup(ctx context.Context, ip string) error {
	if !l.active(ip) {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.signupKey(ip), l.config.SignupWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignupPerIP) {
		return ErrRateLimited
	}
	return nil
}

// GetLoginAttempts returns the failed-login count for ip in the current
// window.
func (l *Limiter) GetLoginAttempts(ctx context.Context, ip string) (int, error) {
	if !l.active(ip) {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.loginKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) loginKey(ip string) string {
	return l.key("ali", ip)
}

func (l *Limiter) signupKey(ip string) string {
	return l.key("asi", ip)
}

func (l *Limiter) key(kind, ip string) string {
	if l.config.Prefix == "" {
		return kind + ":" + ip
	}
	return l.config.Prefix + ":" + kind + ":" + ip
}
