// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import "errors"

// ErrManagerClosed is returned by submissions after Close.
var ErrManagerClosed = errors.New("uploader: manager closed")

// ValidationError rejects a submission before any worker is spawned or any
// network activity occurs.
type ValidationError struct {
	Path   string // offending resource, empty for batch-level problems
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return "uploader: invalid request for " + e.Path + ": " + e.Reason
	}
	return "uploader: invalid request: " + e.Reason
}

// Failure messages for terminal Failed events.
const (
	msgAuthRequired = "authentication required"
	msgCancelled    = "upload cancelled"
)
