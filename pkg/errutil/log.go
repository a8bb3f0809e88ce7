// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package errutil

import (
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// maskedValue replaces credential material found in error context.
const maskedValue = "[REDACTED]"

// sensitiveKeys are context keys whose values never reach a log line.
var sensitiveKeys = []string{"password", "secret", "token", "api_key"}

// LogError logs err at error level. Oops errors contribute their code and
// context as separate attributes; credential-looking context values are
// masked.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// Attrs returns slog key/value pairs describing err.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", maskContext(ctx))
	}
	return attrs
}

func maskContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if isSensitive(k) {
			v = maskedValue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
