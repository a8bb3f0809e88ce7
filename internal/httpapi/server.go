// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package httpapi exposes the authentication services as a JSON API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/observability"
)

// DefaultThrottlePerMinute is the per-IP budget of the password reset routes.
const DefaultThrottlePerMinute = 6

// Options configures a Server.
type Options struct {
	Auth   *auth.Service
	Resets *auth.PasswordResetService
	Logger *slog.Logger
	// Metrics records request counts and latencies when set.
	Metrics *observability.Metrics

	// CORSOrigins are glob patterns of allowed browser origins.
	CORSOrigins       []string
	ThrottlePerMinute int
	TrustProxy        bool
	// Debug exposes internal error messages in 500 responses.
	Debug bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Now overrides the clock used by the IP throttle.
	Now func() time.Time
}

// Server is the HTTP front of the auth services.
type Server struct {
	echo     *echo.Echo
	auth     *auth.Service
	resets   *auth.PasswordResetService
	logger   *slog.Logger
	metrics  *observability.Metrics
	throttle *ipThrottle
	debug    bool
	http     *http.Server
}

// New builds a Server with all routes registered.
func New(opts Options) (*Server, error) {
	if opts.Auth == nil || opts.Resets == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("auth and reset services are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := opts.ThrottlePerMinute
	if perMinute <= 0 {
		perMinute = DefaultThrottlePerMinute
	}
	cors, err := newOriginMatcher(opts.CORSOrigins)
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:     echo.New(),
		auth:     opts.Auth,
		resets:   opts.Resets,
		logger:   logger,
		metrics:  opts.Metrics,
		throttle: newIPThrottle(perMinute, opts.Now),
		debug:    opts.Debug,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	if opts.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(s.observe)
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: cors.allow,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:    []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.routes()

	s.http = &http.Server{
		Handler:           e,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/up", s.handleUp)

	api := e.Group("/api")
	api.GET("/user", s.handleLegacyUser, s.requireBearer)

	g := api.Group("/auth")
	g.POST("/register", s.handleRegister)
	g.POST("/login", s.handleLogin)
	g.GET("/user", s.handleUser, s.requireBearer)
	g.POST("/logout", s.handleLogout, s.requireBearer)
	g.DELETE("/logout/all", s.handleLogoutAll, s.requireBearer)
	g.POST("/forgot-password", s.handleForgotPassword, s.throttleByIP)
	g.POST("/reset-password", s.handleResetPassword, s.throttleByIP)
}

// ServeHTTP makes Server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown. It returns nil after a graceful stop.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}
