// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata limits enforced before any network activity.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 5000

	// MaxFileSize is the remote service's hard upload limit (128 GiB).
	MaxFileSize = 128 << 30
)

// videoExtensions lists the container formats the remote service accepts.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".mkv":  true,
}

// Job is one file's upload request. Immutable once created; owned by the
// manager registry until terminal.
type Job struct {
	ID          string
	Path        string
	Title       string
	Description string
	// PublishAt optionally schedules publication, RFC3339 UTC with a
	// trailing "Z".
	PublishAt string
	Size      int64
	CreatedAt time.Time
}

// newJobID derives a process-unique, monotonic-time-ordered identifier.
func newJobID(now time.Time) string {
	return fmt.Sprintf("upload_%s_%s",
		now.UTC().Format("20060102_150405.000000000"),
		uuid.NewString()[:8])
}

// JobInfo is the externally visible status of a registered job.
type JobInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	State     State     `json:"state"`
	Percent   int       `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
}
