// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when no credential blob has been persisted.
var ErrNoCredential = errors.New("auth: no stored credential")

// Store persists the bearer credential between runs.
type Store interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
	Clear() error
}

// FileStore keeps the credential blob as JSON in a private directory.
// Layout:
//
//	<dir>/            0700
//	  token.json      0600
type FileStore struct {
	dir  string
	path string
}

// Compile-time interface verification
var _ Store = (*FileStore)(nil)

// NewFileStore creates the private directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("auth: create credential dir: %w", err)
	}
	// Tighten permissions if the directory pre-existed.
	if err := os.Chmod(dir, 0700); err != nil {
		return nil, fmt.Errorf("auth: chmod credential dir: %w", err)
	}
	return &FileStore{dir: dir, path: filepath.Join(dir, "token.json")}, nil
}

func (s *FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("auth: read credential blob: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		// Corrupted blob: drop it rather than failing every startup.
		os.Remove(s.path)
		return nil, ErrNoCredential
	}

	if tok.Expiry.IsZero() {
		if exp, ok := expiryFromJWT(tok.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	return &tok, nil
}

// Save writes the blob atomically: write a temp file, then rename over the
// destination.
func (s *FileStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal credential: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("auth: write credential blob: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("auth: persist credential blob: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: clear credential blob: %w", err)
	}
	return nil
}

// expiryFromJWT recovers the expiry from the access token's exp claim when
// the persisted blob predates the expiry field. The signature is not checked;
// the token is only used to schedule refreshes, never to grant access.
func expiryFromJWT(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
