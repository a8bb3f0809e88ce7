// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default login throttling values.
const (
	// DefaultMaxLoginAttempts is the number of failed logins allowed per key
	// inside one window.
	DefaultMaxLoginAttempts = 5

	// DefaultLoginWindow is the rolling window attempts are counted over.
	DefaultLoginWindow = time.Minute

	// DefaultLimiterCleanupInterval is how often idle keys are dropped.
	DefaultLimiterCleanupInterval = 5 * time.Minute
)

// AttemptLimiter counts attempts per key inside a time window. Hit must be
// atomic: concurrent callers for the same key observe distinct counts.
type AttemptLimiter interface {
	// Hit records an attempt and returns the number of attempts in the
	// current window, including this one.
	Hit(ctx context.Context, key string) (int, error)

	// Undo retracts the most recent attempt for key.
	Undo(ctx context.Context, key string) error

	// Attempts returns the number of attempts in the current window.
	Attempts(ctx context.Context, key string) (int, error)

	// AvailableIn returns how long until the oldest attempt leaves the window.
	AvailableIn(ctx context.Context, key string) (time.Duration, error)

	// Reset clears all attempts for key.
	Reset(ctx context.Context, key string) error
}

// ThrottleKey builds the limiter key for a login attempt from the normalized
// email and the client IP.
func ThrottleKey(email, ip string) string {
	return NormalizeEmail(email) + "|" + ip
}

// MemoryLimiterConfig configures a MemoryLimiter.
type MemoryLimiterConfig struct {
	// Window is the rolling window. Defaults to DefaultLoginWindow.
	Window time.Duration

	// CleanupInterval is how often idle keys are removed.
	// Defaults to DefaultLimiterCleanupInterval.
	CleanupInterval time.Duration

	// Registerer, when set, receives a gauge of tracked keys.
	Registerer prometheus.Registerer

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// MemoryLimiter is a sliding-window AttemptLimiter held in process memory.
// It is safe for concurrent use.
//
// A background goroutine drops idle keys. Call Close() to stop it.
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	window time.Duration
	now    func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	keysGauge prometheus.Gauge
}

var _ AttemptLimiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a MemoryLimiter and starts its cleanup goroutine.
func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultLoginWindow
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultLimiterCleanupInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &MemoryLimiter{
		hits:     make(map[string][]time.Time),
		window:   window,
		now:      now,
		stopChan: make(chan struct{}),
	}

	if cfg.Registerer != nil {
		l.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_login_limiter_keys",
			Help: "Current number of keys tracked by the in-memory login limiter",
		})
		cfg.Registerer.MustRegister(l.keysGauge)
	}

	l.wg.Add(1)
	go l.cleanupLoop(interval)

	return l
}

// Hit records an attempt for key.
func (l *MemoryLimiter) Hit(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.prune(key, now)
	live = append(live, now)
	l.hits[key] = live
	return len(live), nil
}

// Undo drops the newest attempt for key.
func (l *MemoryLimiter) Undo(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.prune(key, l.now())
	if len(live) == 0 {
		return nil
	}
	live = live[:len(live)-1]
	if len(live) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = live
	return nil
}

// Attempts returns the live attempt count for key.
func (l *MemoryLimiter) Attempts(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.now())), nil
}

// AvailableIn returns the time until the oldest live attempt expires.
func (l *MemoryLimiter) AvailableIn(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.prune(key, now)
	if len(live) == 0 {
		return 0, nil
	}
	return live[0].Add(l.window).Sub(now), nil
}

// Reset clears key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
	return nil
}

// KeyCount returns the number of tracked keys.
func (l *MemoryLimiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// prune drops attempts outside the window. Caller must hold l.mu.
func (l *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	hits := l.hits[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	live := hits[i:]
	if len(live) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = live
	return live
}

// Cleanup removes keys with no attempts left in the window.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.hits {
		l.prune(key, now)
	}

	if l.keysGauge != nil {
		l.keysGauge.Set(float64(len(l.hits)))
	}
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine. It blocks until the goroutine has
// stopped and is safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}
