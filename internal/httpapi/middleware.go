// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/tollgate/tollgate/internal/auth"
)

const (
	userKey  = "tollgate.user"
	tokenKey = "tollgate.token"
)

func currentUser(c echo.Context) *auth.User {
	u, _ := c.Get(userKey).(*auth.User)
	return u
}

func currentToken(c echo.Context) *auth.AccessToken {
	t, _ := c.Get(tokenKey).(*auth.AccessToken)
	return t
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(header string) (string, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// requireBearer resolves the bearer token and stores the user and token on
// the echo context.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		bearer, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return oops.Code(auth.CodeUnauthenticated).
				With("reason", "missing bearer token").
				Errorf("%s", auth.MsgUnauthenticated)
		}

		user, token, err := s.auth.CurrentUser(c.Request().Context(), bearer)
		if err != nil {
			return err
		}
		c.Set(userKey, user)
		c.Set(tokenKey, token)
		return next(c)
	}
}

func (s *Server) throttleByIP(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if wait := s.throttle.wait(ip); wait > 0 {
			retryAfter := int(math.Ceil(wait.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return oops.Code(codeTooManyRequests).
				With("ip", ip).
				With("retry_after", retryAfter).
				Errorf("%s", MsgTooManyRequests)
		}
		return next(c)
	}
}

// observe records request metrics. Errors are rendered here so the
// recorded status is the one sent to the client.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		if s.metrics == nil {
			return err
		}

		status := c.Response().Status
		route := c.Path()
		if route == "" || status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
			route = "unmatched"
		}
		method := c.Request().Method
		s.metrics.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
				if v.Error != nil {
					attrs = append(attrs, slog.String("error", v.Error.Error()))
				}
			}
			s.logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}

// originMatcher allows CORS origins matching any configured glob.
type originMatcher struct {
	any      bool
	patterns []glob.Glob
}

func newOriginMatcher(patterns []string) (*originMatcher, error) {
	m := &originMatcher{}
	for _, p := range patterns {
		if p == "*" {
			m.any = true
			continue
		}
		// '.' as separator keeps "*" inside a single host label.
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("HTTPAPI_INVALID_ORIGIN").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

func (m *originMatcher) allow(origin string) (bool, error) {
	if m.any {
		return true, nil
	}
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true, nil
		}
	}
	return false, nil
}

const visitorIdle = 10 * time.Minute

// ipThrottle is a token bucket per client IP.
type ipThrottle struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newIPThrottle(perMinute int, now func() time.Time) *ipThrottle {
	if now == nil {
		now = time.Now
	}
	return &ipThrottle{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		visitors: make(map[string]*visitor),
		now:      now,
	}
}

// wait returns zero when ip may proceed, otherwise how long until it may.
func (t *ipThrottle) wait(ip string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.seen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Minute
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

func (t *ipThrottle) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < visitorIdle {
		return
	}
	t.lastSweep = now
	for ip, v := range t.visitors {
		if now.Sub(v.seen) > visitorIdle {
			delete(t.visitors, ip)
		}
	}
}

func (t *ipThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}
