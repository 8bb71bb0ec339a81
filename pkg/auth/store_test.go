// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/vidlift/vidlift/pkg/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "private")
	store, err := auth.NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredential)

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, store.Save(tok))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.WithinDuration(t, tok.Expiry, got.Expiry, time.Second)
}

func TestFileStore_PrivatePermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	dir := filepath.Join(t.TempDir(), "private")
	store, err := auth.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a"}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, "token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_AtomicSaveLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "private")
	store, err := auth.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestFileStore_CorruptBlobDropped(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "private")
	store, err := auth.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "token.json"), []byte("{not json"), 0600))

	_, err = store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredential)
	assert.NoFileExists(t, filepath.Join(dir, "token.json"))
}

func TestFileStore_Clear(t *testing.T) {
	t.Parallel()

	store, err := auth.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear()) // idempotent

	_, err = store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredential)
}

func TestFileStore_ExpiryRecoveredFromJWT(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	jot := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Subject:   "uploader",
	})
	signed, err := jot.SignedString([]byte("test-key"))
	require.NoError(t, err)

	store, err := auth.NewFileStore(t.TempDir())
	require.NoError(t, err)
	// Legacy blob shape: no expiry field persisted.
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: signed, RefreshToken: "r"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.WithinDuration(t, exp, got.Expiry, time.Second)
}
