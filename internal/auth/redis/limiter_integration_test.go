// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

//go:build integration

package redis_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/tollgate/tollgate/internal/auth/redis"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_Integration(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	clk := &clock{now: time.Now().Truncate(time.Microsecond)}
	limiter := redis.NewLimiter(client, redis.Options{Window: time.Minute, Now: clk.Now})
	const key = "ada@example.com|127.0.0.1"

	for i := 1; i <= 5; i++ {
		count, err := limiter.Hit(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		clk.Advance(time.Second)
	}

	count, err := limiter.Hit(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	require.NoError(t, limiter.Undo(ctx, key))

	attempts, err := limiter.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)

	wait, err := limiter.AvailableIn(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 55*time.Second, wait, "oldest attempt was 5s ago")

	clk.Advance(55500 * time.Millisecond)
	attempts, err = limiter.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 4, attempts, "first attempt rolled out of the window")

	ttl, err := client.PTTL(ctx, redis.DefaultKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "keys expire on their own")

	require.NoError(t, limiter.Reset(ctx, key))
	attempts, err = limiter.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, attempts)

	wait, err = limiter.AvailableIn(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestLimiter_ConcurrentHitsAreDistinct(t *testing.T) {
	ctx := context.Background()
	limiter := redis.NewLimiter(startRedis(t), redis.Options{})

	const n = 20
	counts := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := limiter.Hit(ctx, "race|10.0.0.1")
			assert.NoError(t, err)
			counts[i] = c
		}()
	}
	wg.Wait()

	sort.Ints(counts)
	for i, c := range counts {
		assert.Equal(t, i+1, c)
	}
}
