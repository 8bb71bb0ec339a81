// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vidlift/vidlift/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeRefresher counts exchanges and returns a canned token or error.
type fakeRefresher struct {
	calls atomic.Int64
	next  *oauth2.Token
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.next, nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newSession(t *testing.T, tok *oauth2.Token, r auth.Refresher, clock *fakeClock) *auth.Session {
	t.Helper()

	store, err := auth.NewFileStore(t.TempDir())
	require.NoError(t, err)
	if tok != nil {
		require.NoError(t, store.Save(tok))
	}

	s, err := auth.NewSession(auth.SessionConfig{
		Store:     store,
		Refresher: r,
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	return s
}

func TestSession_ValidCredential(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	tok := &oauth2.Token{
		AccessToken: "live",
		Expiry:      clock.t.Add(time.Hour),
	}
	s := newSession(t, tok, &fakeRefresher{}, clock)

	assert.True(t, s.IsValid(context.Background()))
	cred, ok := s.GetCredential()
	require.True(t, ok)
	assert.Equal(t, "live", cred)
}

func TestSession_NoCredential(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	s := newSession(t, nil, &fakeRefresher{}, clock)

	assert.False(t, s.IsValid(context.Background()))
	_, ok := s.GetCredential()
	assert.False(t, ok)
}

func TestSession_ExpiredRefreshes(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	refresher := &fakeRefresher{next: &oauth2.Token{
		AccessToken: "fresh",
		Expiry:      clock.t.Add(time.Hour),
	}}
	tok := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.t.Add(-time.Minute),
	}
	s := newSession(t, tok, refresher, clock)

	assert.True(t, s.IsValid(context.Background()))
	assert.Equal(t, int64(1), refresher.calls.Load())

	cred, ok := s.GetCredential()
	require.True(t, ok)
	assert.Equal(t, "fresh", cred)
}

func TestSession_RefreshCooldown_SingleAttempt(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	// Refresh keeps handing back an expired token, so every IsValid would
	// retry if the cooldown did not intervene.
	refresher := &fakeRefresher{next: &oauth2.Token{
		AccessToken:  "still-stale",
		RefreshToken: "refresh",
		Expiry:       clock.t.Add(-time.Minute),
	}}
	tok := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.t.Add(-time.Minute),
	}
	s := newSession(t, tok, refresher, clock)

	// Both calls land inside the 30s cooldown window: at most one exchange.
	assert.True(t, s.IsValid(context.Background()))
	assert.True(t, s.IsValid(context.Background()))
	assert.Equal(t, int64(1), refresher.calls.Load())

	// Relaxed-validity window: during cooldown the credential is assumed
	// valid even though it is expired.
	clock.Advance(10 * time.Second)
	assert.True(t, s.IsValid(context.Background()))
	assert.Equal(t, int64(1), refresher.calls.Load())

	// Past the cooldown a new attempt is made.
	clock.Advance(auth.DefaultRefreshCooldown)
	assert.True(t, s.IsValid(context.Background()))
	assert.Equal(t, int64(2), refresher.calls.Load())
}

func TestSession_RefreshFailureInvalidates(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	refresher := &fakeRefresher{err: errors.New("exchange rejected")}
	tok := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.t.Add(-time.Minute),
	}
	s := newSession(t, tok, refresher, clock)

	assert.False(t, s.IsValid(context.Background()))

	// Forced logout: credential gone, not retried.
	_, ok := s.GetCredential()
	assert.False(t, ok)
	assert.False(t, s.Info().Authenticated)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestSession_ExpiredWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	tok := &oauth2.Token{
		AccessToken: "stale",
		Expiry:      clock.t.Add(-time.Minute),
	}
	s := newSession(t, tok, &fakeRefresher{}, clock)

	assert.False(t, s.IsValid(context.Background()))
	_, ok := s.GetCredential()
	assert.False(t, ok)
}

func TestSession_ExplicitRefreshFailure(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	refresher := &fakeRefresher{err: errors.New("revoked")}
	tok := &oauth2.Token{
		AccessToken:  "live",
		RefreshToken: "refresh",
		Expiry:       clock.t.Add(time.Hour),
	}
	s := newSession(t, tok, refresher, clock)

	require.Error(t, s.Refresh(context.Background()))
	assert.False(t, s.IsValid(context.Background()))
}

func TestSession_Info(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	expiry := clock.t.Add(time.Hour)
	s := newSession(t, &oauth2.Token{AccessToken: "live", Expiry: expiry}, &fakeRefresher{}, clock)

	info := s.Info()
	assert.True(t, info.Authenticated)
	assert.WithinDuration(t, expiry, info.ExpiresAt, time.Second)
}
