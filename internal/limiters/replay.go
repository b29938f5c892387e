package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReplayUnavailable indicates the replay guard backend is unreachable.
var ErrReplayUnavailable = errors.New("replay guard unavailable")

// ReplayGuard remembers accepted TOTP time steps per user so a code cannot
// be presented twice inside its validity window.
type ReplayGuard struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewReplayGuard creates a guard whose entries outlive every step that the
// verifier could still accept: (2*skew+1) periods.
func NewReplayGuard(redisClient redis.UniversalClient, prefix string, period time.Duration, skew int) *ReplayGuard {
	if period <= 0 {
		period = 30 * time.Second
	}
	if skew < 0 {
		skew = 0
	}
	return &ReplayGuard{
		redis:  redisClient,
		prefix: prefix,
		ttl:    period * time.Duration(2*skew+2),
	}
}

func (g *ReplayGuard) key(userID string, step int64) string {
	return joinKey(g.prefix, "mfar", userID+":"+strconv.FormatInt(step, 10))
}

// MarkUsed records step for userID. It reports false when the step was
// already used.
func (g *ReplayGuard) MarkUsed(ctx context.Context, userID string, step int64) (bool, error) {
	if g == nil || g.redis == nil {
		return true, nil
	}
	fresh, err := g.redis.SetNX(ctx, g.key(userID, step), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReplayUnavailable, err)
	}
	return fresh, nil
}

func joinKey(prefix, kind, id string) string {
	if prefix == "" {
		return kind + ":" + id
	}
	return prefix + ":" + kind + ":" + id
}
