// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

const (
	// VisibilityPrivate is the default visibility for new uploads.
	VisibilityPrivate = "private"

	// DefaultMimeType is used when the extension is unknown.
	DefaultMimeType = "video/mp4"
)

var ErrMissingTitle = errors.New("transfer: metadata title is required")

// Metadata describes the remote resource created by an upload.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	// PublishAt optionally schedules publication. Must be RFC3339 UTC with a
	// trailing "Z"; validated before any bytes are sent.
	PublishAt string `json:"publishAt,omitempty"`
	MimeType  string `json:"-"`
}

// Validate checks the metadata before the upload session is initiated.
// A malformed PublishAt is rejected here so that no network call happens.
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return ErrMissingTitle
	}
	if m.PublishAt != "" {
		if err := ValidatePublishAt(m.PublishAt); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePublishAt enforces the wire format for schedule timestamps:
// RFC3339, UTC, trailing "Z".
func ValidatePublishAt(ts string) error {
	if !strings.HasSuffix(ts, "Z") || !strings.Contains(ts, "T") {
		return fmt.Errorf("transfer: publishAt %q is not RFC3339 UTC (expected trailing Z)", ts)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return fmt.Errorf("transfer: invalid publishAt %q: %w", ts, err)
	}
	return nil
}

// normalize fills defaults prior to initiating a session.
func (m *Metadata) normalize(path string) {
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	if m.Visibility == "" {
		m.Visibility = VisibilityPrivate
	}
	if m.MimeType == "" {
		m.MimeType = MimeTypeFor(path)
	}
}

// MimeTypeFor resolves the MIME type from the file extension, falling back
// to the generic video type.
func MimeTypeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); strings.HasPrefix(mt, "video/") {
		return mt
	}
	return DefaultMimeType
}
