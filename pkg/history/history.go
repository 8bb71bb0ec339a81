// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

// Package history records finished uploads so that past outcomes survive
// process restarts and can be listed from the CLI.
package history

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit caps how many records a sink retains.
const DefaultLimit = 1000

// Record is the durable trace of one finished upload job.
type Record struct {
	JobID       string        `json:"job_id"`
	Path        string        `json:"path"`
	Title       string        `json:"title"`
	RemoteID    string        `json:"remote_id,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	BytesSent   int64         `json:"bytes_sent"`
}

// Sink persists terminal upload outcomes. Append is called once per job,
// after the job has already been reported to subscribers; a failing sink
// must not block or fail the upload pipeline.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
}

// MemorySink keeps records in process memory, newest first. Used when no
// redis address is configured.
type MemorySink struct {
	mu    sync.Mutex
	recs  []Record
	limit int
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = append([]Record{rec}, s.recs...)
	if len(s.recs) > s.limit {
		s.recs = s.recs[:s.limit]
	}
	return nil
}

func (s *MemorySink) Recent(_ context.Context, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.recs) {
		n = len(s.recs)
	}
	out := make([]Record, n)
	copy(out, s.recs[:n])
	return out, nil
}
