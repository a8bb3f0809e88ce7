// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package redis provides a Redis-backed auth.AttemptLimiter so that login
// throttling is shared by every server instance.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// DefaultKeyPrefix namespaces limiter keys.
const DefaultKeyPrefix = "tollgate:login:"

// Each key is a sorted set of attempts scored by Unix microseconds. Stale
// members are trimmed before the new one is added so the count reflects
// only the rolling window.
var hitScript = goredis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', tonumber(ARGV[1]) - tonumber(ARGV[2]))
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return redis.call('ZCARD', KEYS[1])
`)

// Options configures a Limiter.
type Options struct {
	Window    time.Duration
	KeyPrefix string
	Now       func() time.Time
}

// Limiter is a sliding-window auth.AttemptLimiter stored in Redis.
type Limiter struct {
	client goredis.UniversalClient
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewLimiter creates a Limiter over client.
func NewLimiter(client goredis.UniversalClient, opts Options) *Limiter {
	l := &Limiter{
		client: client,
		window: opts.Window,
		prefix: opts.KeyPrefix,
		now:    opts.Now,
	}
	if l.window <= 0 {
		l.window = auth.DefaultLoginWindow
	}
	if l.prefix == "" {
		l.prefix = DefaultKeyPrefix
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Hit records an attempt and returns the count inside the window.
func (l *Limiter) Hit(ctx context.Context, key string) (int, error) {
	now := l.now().UnixMicro()
	count, err := hitScript.Run(ctx, l.client, []string{l.prefix + key},
		now,
		l.window.Microseconds(),
		ulid.Make().String(),
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return 0, oops.Code("LIMITER_HIT_FAILED").With("key", key).Wrap(err)
	}
	return count, nil
}

// Undo removes the newest attempt for key.
func (l *Limiter) Undo(ctx context.Context, key string) error {
	if err := l.client.ZPopMax(ctx, l.prefix+key, 1).Err(); err != nil {
		return oops.Code("LIMITER_UNDO_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Attempts returns the number of attempts inside the window.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.client.ZCount(ctx, l.prefix+key, l.windowStart(), "+inf").Result()
	if err != nil {
		return 0, oops.Code("LIMITER_READ_FAILED").With("key", key).Wrap(err)
	}
	return int(count), nil
}

// AvailableIn returns how long until the oldest attempt in the window
// expires. It is zero when no attempts are recorded.
func (l *Limiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	oldest, err := l.client.ZRangeArgsWithScores(ctx, goredis.ZRangeArgs{
		Key:     l.prefix + key,
		Start:   l.windowStart(),
		Stop:    "+inf",
		ByScore: true,
		Count:   1,
	}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return 0, oops.Code("LIMITER_READ_FAILED").With("key", key).Wrap(err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	expiresAt := time.UnixMicro(int64(oldest[0].Score)).Add(l.window)
	remaining := expiresAt.Sub(l.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Reset clears all attempts for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return oops.Code("LIMITER_RESET_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// windowStart is the exclusive lower score bound of the current window.
func (l *Limiter) windowStart() string {
	start := l.now().Add(-l.window).UnixMicro()
	return "(" + strconv.FormatInt(start, 10)
}

// Ping verifies the Redis connection.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return oops.Code("LIMITER_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.AttemptLimiter = (*Limiter)(nil)
