// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies a domain event.
type EventType string

// Domain event types.
const (
	EventPasswordWasReset EventType = "password_was_reset"
	EventUserRegistered   EventType = "user_registered"
)

// Event is a notification emitted after a state change has been committed.
type Event struct {
	Type   EventType
	UserID ulid.ULID
	Email  string
	At     time.Time
}

// EventSink receives domain events. Publish must not block the caller for
// long; sinks that fan out should queue internally.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event)

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, event Event) {
	f(ctx, event)
}

// LogEventSink writes events to a logger.
type LogEventSink struct {
	Logger *slog.Logger
}

// Publish logs the event at info level.
func (s LogEventSink) Publish(ctx context.Context, event Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "auth event",
		"event", string(event.Type),
		"user_id", event.UserID.String(),
		"at", event.At,
	)
}

// MultiSink publishes to every sink in order.
type MultiSink []EventSink

// Publish forwards the event to each sink.
func (m MultiSink) Publish(ctx context.Context, event Event) {
	for _, s := range m {
		s.Publish(ctx, event)
	}
}
