// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth owns the bearer credential used to authorize uploads: its
// persistence, expiry tracking, and refresh-token exchange.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vidlift/vidlift/pkg/logger"

	"golang.org/x/oauth2"
)

// DefaultRefreshCooldown spaces out refresh attempts so that many workers
// discovering an expired credential at once trigger at most one exchange.
const DefaultRefreshCooldown = 30 * time.Second

var (
	// ErrNotAuthenticated is returned when no usable credential exists.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
	// ErrNoRefreshToken is returned when the credential cannot be renewed.
	ErrNoRefreshToken = errors.New("auth: no refresh token")
)

// Refresher exchanges a refresh token for a fresh credential.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through the standard OAuth2 token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

func (r *OAuthRefresher) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := r.Config.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange: %w", err)
	}
	return fresh, nil
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Store     Store
	Refresher Refresher

	// Cooldown overrides DefaultRefreshCooldown (tests only).
	Cooldown time.Duration

	// Clock overrides time.Now (tests only).
	Clock func() time.Time
}

// Session owns the current credential. Every worker consults it before an
// upload attempt; all state is guarded by one mutex.
type Session struct {
	mu                 sync.Mutex
	store              Store
	refresher          Refresher
	cooldown           time.Duration
	now                func() time.Time
	token              *oauth2.Token
	lastRefreshAttempt time.Time
	lastRefresh        time.Time
}

// Info is a point-in-time snapshot of the session for status surfaces.
type Info struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	LastRefresh   time.Time `json:"last_refresh,omitzero"`
}

// NewSession loads any persisted credential and returns the session. A
// missing blob is not an error; the session simply starts unauthenticated.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultRefreshCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Session{
		store:     cfg.Store,
		refresher: cfg.Refresher,
		cooldown:  cfg.Cooldown,
		now:       cfg.Clock,
	}

	tok, err := cfg.Store.Load()
	switch {
	case err == nil:
		s.token = tok
	case errors.Is(err, ErrNoCredential):
		// Start unauthenticated.
	default:
		return nil, err
	}

	return s, nil
}

// IsValid reports whether a usable credential is available, refreshing an
// expired one when a refresh token exists and the cooldown allows it.
//
// While the cooldown suppresses a refresh, the credential is assumed still
// valid. This is a deliberate relaxed-validity window of up to the cooldown
// duration: it avoids failing every queued job the moment the credential
// expires, at the cost of possibly presenting a stale token.
func (s *Session) IsValid(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.AccessToken == "" {
		return false
	}
	if !s.expiredLocked() {
		return true
	}
	if s.token.RefreshToken == "" {
		logger.Info().Msg("auth: credential expired and no refresh token, logging out")
		s.invalidateLocked()
		return false
	}
	if s.now().Sub(s.lastRefreshAttempt) < s.cooldown {
		logger.Debug().Msg("auth: refresh cooldown active, assuming credential still valid")
		return true
	}

	return s.refreshLocked(ctx) == nil
}

// GetCredential returns the current bearer token. It does not trigger a
// refresh; callers gate on IsValid first.
func (s *Session) GetCredential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.AccessToken == "" {
		return "", false
	}
	return s.token.AccessToken, true
}

// Refresh exchanges the refresh token for a new credential. On failure the
// session is invalidated entirely; the caller must re-authenticate from
// scratch. The session never retries a failed refresh by itself.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return ErrNotAuthenticated
	}
	if s.token.RefreshToken == "" {
		s.invalidateLocked()
		return ErrNoRefreshToken
	}
	return s.refreshLocked(ctx)
}

// SetToken installs a freshly issued credential (initial login) and
// persists it.
func (s *Session) SetToken(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = tok
	return s.store.Save(tok)
}

// Logout drops the credential and clears the persisted blob.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

// Info returns a snapshot for status display.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{LastRefresh: s.lastRefresh}
	if s.token != nil && s.token.AccessToken != "" {
		info.Authenticated = true
		info.ExpiresAt = s.token.Expiry
	}
	return info
}

func (s *Session) expiredLocked() bool {
	if s.token.Expiry.IsZero() {
		return false
	}
	return s.token.Expiry.Before(s.now())
}

func (s *Session) refreshLocked(ctx context.Context) error {
	s.lastRefreshAttempt = s.now()

	fresh, err := s.refresher.Refresh(ctx, s.token)
	if err != nil {
		logger.Warn().Err(err).Msg("auth: refresh failed, logging out")
		s.invalidateLocked()
		return err
	}

	// Providers may omit the refresh token on renewal; keep the old one.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = s.token.RefreshToken
	}

	s.token = fresh
	s.lastRefresh = s.now()
	if err := s.store.Save(fresh); err != nil {
		logger.Error().Err(err).Msg("auth: failed to persist refreshed credential")
	}
	logger.Info().Time("expires_at", fresh.Expiry).Msg("auth: credential refreshed")
	return nil
}

func (s *Session) invalidateLocked() {
	s.token = nil
	s.lastRefresh = time.Time{}
	if err := s.store.Clear(); err != nil {
		logger.Error().Err(err).Msg("auth: failed to clear credential blob")
	}
}
