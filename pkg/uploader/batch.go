// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

// BatchProgress is the aggregate state of the active batch.
// Invariant: Completed + Failed <= Total.
type BatchProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Done reports whether every member job has settled.
func (p BatchProgress) Done() bool {
	return p.Completed+p.Failed == p.Total
}

// batchContext tracks one batch of jobs submitted together. Single-use:
// cleared when the last member settles. Guarded by the manager mutex.
type batchContext struct {
	members   map[string]struct{}
	total     int
	completed int
	failed    int
}

func newBatchContext(jobIDs []string) *batchContext {
	members := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		members[id] = struct{}{}
	}
	return &batchContext{members: members, total: len(jobIDs)}
}

// settle folds one member's terminal outcome into the counters. Cancelled
// jobs count as failed for batch accounting. Returns false if the job is
// not a member.
func (b *batchContext) settle(jobID string, success bool) (BatchProgress, bool) {
	if _, ok := b.members[jobID]; !ok {
		return BatchProgress{}, false
	}
	delete(b.members, jobID)
	if success {
		b.completed++
	} else {
		b.failed++
	}
	return b.progress(), true
}

func (b *batchContext) progress() BatchProgress {
	return BatchProgress{Total: b.total, Completed: b.completed, Failed: b.failed}
}
