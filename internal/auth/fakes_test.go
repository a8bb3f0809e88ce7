// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/auth"
)

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu        sync.Mutex
	byID      map[ulid.ULID]*auth.User
	updateErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[ulid.ULID]*auth.User)}
}

func (m *memUsers) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, id ulid.ULID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// memTokens is an in-memory AccessTokenRepository.
type memTokens struct {
	mu        sync.Mutex
	byID      map[ulid.ULID]*auth.AccessToken
	deleteErr error
}

func newMemTokens() *memTokens {
	return &memTokens{byID: make(map[ulid.ULID]*auth.AccessToken)}
}

func (m *memTokens) Create(_ context.Context, token *auth.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.byID[token.ID] = &cp
	return nil
}

func (m *memTokens) GetByID(_ context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.AccessToken
	for _, t := range m.byID {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTokens) CountByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	list, err := m.ListByUser(ctx, userID)
	return int64(len(list)), err
}

func (m *memTokens) TouchLastUsed(_ context.Context, id ulid.ULID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byID[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

func (m *memTokens) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memTokens) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for id, t := range m.byID {
		if t.UserID == userID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

// memResets is an in-memory PasswordResetRepository.
type memResets struct {
	mu      sync.Mutex
	byEmail map[string]*auth.PasswordReset
}

func newMemResets() *memResets {
	return &memResets{byEmail: make(map[string]*auth.PasswordReset)}
}

func (m *memResets) Upsert(_ context.Context, reset *auth.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reset
	m.byEmail[reset.Email] = &cp
	return nil
}

func (m *memResets) GetByEmail(_ context.Context, email string) (*auth.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResets) Consume(_ context.Context, email, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byEmail[email]
	if !ok || r.TokenHash != tokenHash {
		return false, nil
	}
	delete(m.byEmail, email)
	return true, nil
}

func (m *memResets) DeleteByEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byEmail, email)
	return nil
}

func (m *memResets) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for email, r := range m.byEmail {
		if r.CreatedAt.Before(cutoff) {
			delete(m.byEmail, email)
			n++
		}
	}
	return n, nil
}

// captureSender records the last reset token handed out.
type captureSender struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (c *captureSender) SendResetLink(_ context.Context, user *auth.User, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		c.tokens = make(map[string]string)
	}
	c.tokens[user.Email] = token
	return nil
}

func (c *captureSender) last(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[email]
}

// undoFailingLimiter wraps a MemoryLimiter and fails every Undo.
type undoFailingLimiter struct {
	*auth.MemoryLimiter
	err error
}

func (l undoFailingLimiter) Undo(context.Context, string) error {
	return l.err
}

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Event  string         `json:"event"`
	Count  int            `json:"count"`
	UserID string         `json:"user_id"`
	Ctx    map[string]any `json:"context"`
}

// findLogEntry returns the first JSON log line with the given message.
func findLogEntry(t *testing.T, buf *bytes.Buffer, msg string) logEntry {
	t.Helper()
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry logEntry
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry.Msg == msg {
			return entry
		}
	}
	t.Fatalf("no log entry %q in:\n%s", msg, buf.String())
	return logEntry{}
}
