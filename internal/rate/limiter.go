package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the failure budget. MaxFailures <= 0 disables the limiter.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

// Limiter counts failed logins per credential id.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New returns a Limiter keyed under prefix.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.MaxFailures > 0 && l.config.Window > 0
}

// Check returns ErrRateLimited when id has spent its failure budget.
func (l *Limiter) Check(ctx context.Context, id string) error {
	if !l.Enabled() {
		return nil
	}

	count, err := l.Failures(ctx, id)
	if err != nil {
		return err
	}
	if count >= l.config.MaxFailures {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed login for id and returns ErrRateLimited
// once the budget is spent.
func (l *Limiter) RecordFailure(ctx context.Context, id string) error {
	if !l.Enabled() {
		return nil
	}

	count, err := l.redis.Incr(ctx, l.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the first failure starts the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(id), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for id.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the failures recorded for id in the current window.
// Unknown ids report zero.
func (l *Limiter) Failures(ctx context.Context, id string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(id string) string {
	return l.prefix + ":fail:" + id
}
