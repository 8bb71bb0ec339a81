// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateUploading.Terminal())
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateQueued, StateAuthenticating, true},
		{StateQueued, StateFailed, true},
		{StateAuthenticating, StateUploading, true},
		{StateUploading, StateCancelled, true},
		{StateUploading, StateQueued, false},
		{StateProcessing, StateUploading, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateQueued, false},
		{StateCancelled, StateCompleted, false},
		{StateUploading, StateUploading, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}
