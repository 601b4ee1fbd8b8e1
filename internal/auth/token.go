// Package auth issues and validates the bearer tokens that guard the
// send endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is the lifetime of a token when none is configured.
const DefaultTTL = time.Hour

var (
	ErrUnknownUser  = errors.New("authentication failed")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Token is an issued bearer token.
type Token struct {
	Value     string    `json:"token"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Manager keeps the issued tokens in memory. Restarting the process
// invalidates them.
type Manager struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	users  map[string]bool
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager that accepts the given usernames.
func NewManager(users []string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		tokens: make(map[string]*Token),
		users:  make(map[string]bool, len(users)),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, u := range users {
		if u != "" {
			m.users[u] = true
		}
	}
	return m
}

// Enabled reports whether any user is configured. Without users the
// endpoints are open.
func (m *Manager) Enabled() bool {
	return len(m.users) > 0
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Login issues a token for username.
func (m *Manager) Login(username string) (*Token, error) {
	if !m.users[username] {
		return nil, ErrUnknownUser
	}

	value, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	tok := &Token{
		Value:     value,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.tokens[value] = tok
	m.mu.Unlock()
	return tok, nil
}

// Validate returns the token for value if it exists and has not expired.
func (m *Manager) Validate(value string) (*Token, error) {
	m.mu.RLock()
	tok, ok := m.tokens[value]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidToken
	}
	if m.now().After(tok.ExpiresAt) {
		return nil, ErrExpiredToken
	}
	return tok, nil
}

// Revoke forgets a token.
func (m *Manager) Revoke(value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[value]; !ok {
		return ErrInvalidToken
	}
	delete(m.tokens, value)
	return nil
}

// CleanExpired removes expired tokens and returns how many were removed.
func (m *Manager) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for value, tok := range m.tokens {
		if now.After(tok.ExpiresAt) {
			delete(m.tokens, value)
			count++
		}
	}
	return count
}

// Run cleans expired tokens every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanExpired()
		}
	}
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
