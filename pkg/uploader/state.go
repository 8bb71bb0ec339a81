// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

// State is the lifecycle state of an upload job. Jobs only move forward:
// no state is ever revisited.
type State string

const (
	StateQueued         State = "queued"
	StateAuthenticating State = "authenticating"
	StateUploading      State = "uploading"
	StateProcessing     State = "processing"
	StateFinalizing     State = "finalizing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// stateRank orders the forward-only progression. The three terminal states
// share a rank: exactly one of them ends a job.
var stateRank = map[State]int{
	StateQueued:         0,
	StateAuthenticating: 1,
	StateUploading:      2,
	StateProcessing:     3,
	StateFinalizing:     4,
	StateCompleted:      5,
	StateFailed:         5,
	StateCancelled:      5,
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to moves strictly forward.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	fr, ok := stateRank[from]
	if !ok {
		return false
	}
	tr, ok := stateRank[to]
	if !ok {
		return false
	}
	return tr > fr
}
