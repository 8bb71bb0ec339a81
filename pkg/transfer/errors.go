// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"net/http"
)

// Reason classifies a terminal transfer failure. The classification is
// decided once, here at the client boundary; callers switch on the code
// instead of matching error strings.
type Reason int

const (
	// ReasonTransport covers network failures and unrecognized remote errors.
	ReasonTransport Reason = iota
	// ReasonAccessDenied maps remote 403: permission or quota exhaustion.
	ReasonAccessDenied
	// ReasonInvalidRequest maps remote 400: malformed metadata or payload.
	ReasonInvalidRequest
	// ReasonTooLarge maps remote 413: payload exceeds the remote limit.
	ReasonTooLarge
)

func (r Reason) String() string {
	switch r {
	case ReasonAccessDenied:
		return "access_denied"
	case ReasonInvalidRequest:
		return "invalid_request"
	case ReasonTooLarge:
		return "too_large"
	default:
		return "transport"
	}
}

// Error is a classified transfer failure.
type Error struct {
	Reason Reason
	Status int    // HTTP status, 0 for transport failures
	Detail string // underlying message, preserved verbatim
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transfer: %s (HTTP %d): %s", e.Reason, e.Status, e.Detail)
	}
	return fmt.Sprintf("transfer: %s: %s", e.Reason, e.Detail)
}

// Message returns the human-readable classification shown to users.
func (e *Error) Message() string {
	switch e.Reason {
	case ReasonAccessDenied:
		return "access denied / quota - check API permissions and quota"
	case ReasonInvalidRequest:
		return "invalid request - check file format and metadata"
	case ReasonTooLarge:
		return "file too large for upload"
	default:
		return "upload failed: " + e.Detail
	}
}

// classify maps a remote HTTP status to a typed Error.
func classify(status int, body string) *Error {
	e := &Error{Status: status, Detail: body}
	switch status {
	case http.StatusForbidden:
		e.Reason = ReasonAccessDenied
	case http.StatusBadRequest:
		e.Reason = ReasonInvalidRequest
	case http.StatusRequestEntityTooLarge:
		e.Reason = ReasonTooLarge
	default:
		e.Reason = ReasonTransport
	}
	return e
}

func transportErr(err error) *Error {
	return &Error{Reason: ReasonTransport, Detail: err.Error()}
}
