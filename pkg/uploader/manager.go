// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploader orchestrates concurrent video uploads: per-job workers,
// batch accounting, progress events, and cooperative cancellation.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vidlift/vidlift/pkg/history"
	"github.com/vidlift/vidlift/pkg/logger"
	"github.com/vidlift/vidlift/pkg/transfer"
)

// DefaultShutdownTimeout bounds how long Close waits for in-flight workers
// before abandoning them.
const DefaultShutdownTimeout = 5 * time.Second

// Request is one upload submission.
type Request struct {
	Path        string
	Title       string
	Description string
	// PublishAt optionally schedules publication, RFC3339 UTC with a
	// trailing "Z". Must be in the future.
	PublishAt string
}

// Config configures a Manager.
type Config struct {
	Transfer TransferClient
	Auth     Credentials

	// History receives a record per terminal job. Optional.
	History history.Sink

	// ShutdownTimeout overrides DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// EventBuffer overrides the per-subscriber channel depth.
	EventBuffer int

	// Clock overrides time.Now (tests only).
	Clock func() time.Time
}

// Manager owns the job registry and the active batch. One mutex guards all
// mutable state; workers run outside the lock and report back through it.
type Manager struct {
	client          TransferClient
	creds           Credentials
	history         history.Sink
	shutdownTimeout time.Duration
	now             func() time.Time
	bus             *bus

	mu     sync.Mutex
	jobs   map[string]*jobEntry
	batch  *batchContext
	closed bool

	wg sync.WaitGroup
}

// jobEntry is the registry slot for a live job. Removed at terminal state,
// so Status and Cancel see only active jobs.
type jobEntry struct {
	job     Job
	worker  *worker
	state   State
	percent int
}

// NewManager creates a manager ready to accept submissions.
func NewManager(cfg Config) *Manager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		client:          cfg.Transfer,
		creds:           cfg.Auth,
		history:         cfg.History,
		shutdownTimeout: cfg.ShutdownTimeout,
		now:             cfg.Clock,
		bus:             newBus(cfg.EventBuffer),
		jobs:            make(map[string]*jobEntry),
	}
}

// ValidateRequest checks a submission without side effects. It returns
// false and a human-readable reason on the first problem found. The auth
// check only looks for a present credential; it never triggers a refresh.
func (m *Manager) ValidateRequest(path, title, description string) (bool, string) {
	if _, ok := m.creds.GetCredential(); !ok {
		return false, "not authenticated"
	}

	st, err := os.Stat(path)
	if err != nil {
		return false, "file not found: " + path
	}
	if !st.Mode().IsRegular() {
		return false, "not a regular file: " + path
	}
	if st.Size() == 0 {
		return false, "file is empty: " + path
	}
	if st.Size() > MaxFileSize {
		return false, "file exceeds the 128 GiB upload limit"
	}
	if ext := strings.ToLower(filepath.Ext(path)); !videoExtensions[ext] {
		return false, "unsupported file type: " + ext
	}

	// Limits are in characters, not bytes; multi-byte titles are fine.
	if strings.TrimSpace(title) == "" {
		return false, "title is required"
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return false, fmt.Sprintf("title exceeds %d characters", MaxTitleLen)
	}
	if strings.TrimSpace(description) == "" {
		return false, "description is required"
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return false, fmt.Sprintf("description exceeds %d characters", MaxDescriptionLen)
	}
	return true, ""
}

// Submit validates and enqueues a single upload. The returned job ID is
// live immediately; no network activity has happened yet.
func (m *Manager) Submit(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrManagerClosed
	}
	job, err := m.buildJob(req)
	if err != nil {
		return "", err
	}
	m.startLocked(job)
	return job.ID, nil
}

// SubmitBatch validates every request before starting any of them: one bad
// request rejects the whole batch with zero workers spawned. On success it
// installs the batch context and launches all jobs.
func (m *Manager) SubmitBatch(reqs []Request) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if len(reqs) == 0 {
		return nil, &ValidationError{Reason: "batch is empty"}
	}
	if m.batch != nil {
		return nil, &ValidationError{Reason: "a batch is already in progress"}
	}

	jobs := make([]Job, 0, len(reqs))
	for _, req := range reqs {
		job, err := m.buildJob(req)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	m.batch = newBatchContext(ids)
	for _, job := range jobs {
		m.startLocked(job)
	}

	logger.Info().Int("jobs", len(ids)).Msg("uploader: batch started")
	return ids, nil
}

func (m *Manager) buildJob(req Request) (Job, error) {
	if ok, reason := m.ValidateRequest(req.Path, req.Title, req.Description); !ok {
		return Job{}, &ValidationError{Path: req.Path, Reason: reason}
	}
	if req.PublishAt != "" {
		if err := transfer.ValidatePublishAt(req.PublishAt); err != nil {
			return Job{}, &ValidationError{Path: req.Path, Reason: err.Error()}
		}
		at, _ := time.Parse(time.RFC3339, req.PublishAt)
		if !at.After(m.now()) {
			return Job{}, &ValidationError{Path: req.Path, Reason: "scheduled publish time must be in the future"}
		}
	}

	st, err := os.Stat(req.Path)
	if err != nil {
		return Job{}, &ValidationError{Path: req.Path, Reason: "file not found: " + req.Path}
	}

	now := m.now()
	return Job{
		ID:          newJobID(now),
		Path:        req.Path,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		PublishAt:   req.PublishAt,
		Size:        st.Size(),
		CreatedAt:   now,
	}, nil
}

func (m *Manager) startLocked(job Job) {
	w := &worker{mgr: m, job: job}
	m.jobs[job.ID] = &jobEntry{job: job, worker: w, state: StateQueued}
	m.wg.Add(1)
	go w.run(context.Background())
}

// Cancel requests cooperative cancellation of one job. Returns false when
// the job is unknown or already terminal; a true return only means the
// request was accepted, the job settles asynchronously.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	entry, ok := m.jobs[jobID]
	m.mu.Unlock()

	if !ok {
		return false
	}
	entry.worker.cancelled.Store(true)
	logger.Info().Str("job_id", jobID).Msg("uploader: cancellation requested")
	return true
}

// CancelAll requests cancellation of every active job and returns how many
// were signalled.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.jobs {
		entry.worker.cancelled.Store(true)
	}
	return len(m.jobs)
}

// Status reports one active job. Terminal jobs are absent.
func (m *Manager) Status(jobID string) (JobInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[jobID]
	if !ok {
		return JobInfo{}, false
	}
	return entry.info(), true
}

// Active lists every live job.
func (m *Manager) Active() []JobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]JobInfo, 0, len(m.jobs))
	for _, entry := range m.jobs {
		out = append(out, entry.info())
	}
	return out
}

func (e *jobEntry) info() JobInfo {
	return JobInfo{
		ID:        e.job.ID,
		Path:      e.job.Path,
		Title:     e.job.Title,
		State:     e.state,
		Percent:   e.percent,
		CreatedAt: e.job.CreatedAt,
	}
}

// BatchProgress reports the active batch, if any.
func (m *Manager) BatchProgress() (BatchProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == nil {
		return BatchProgress{}, false
	}
	return m.batch.progress(), true
}

// Subscribe registers an event consumer. The caller must drain the channel
// or events are dropped.
func (m *Manager) Subscribe() *Subscription {
	return m.bus.subscribe()
}

// Unsubscribe cancels a subscription and closes its channel.
func (m *Manager) Unsubscribe(sub *Subscription) {
	m.bus.unsubscribe(sub)
}

// Close stops accepting submissions, requests cancellation of all active
// jobs, and waits up to the shutdown timeout before abandoning workers.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	active := len(m.jobs)
	for _, entry := range m.jobs {
		entry.worker.cancelled.Store(true)
	}
	m.mu.Unlock()

	if active > 0 {
		logger.Info().Int("active", active).Msg("uploader: shutting down, cancelling active jobs")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(m.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Msg("uploader: shutdown interrupted, abandoning workers")
	case <-timer.C:
		logger.Warn().Dur("timeout", m.shutdownTimeout).Msg("uploader: shutdown timed out, abandoning workers")
	}

	m.bus.close()
	return nil
}

// setProgress records a worker's latest state and percent in the registry.
func (m *Manager) setProgress(jobID string, state State, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.jobs[jobID]; ok {
		entry.state = state
		entry.percent = percent
	}
}

func (m *Manager) publish(evt Event) {
	m.bus.publish(evt)
}

// finishJob settles one job: it removes the registry entry and commits the
// batch counters atomically, then publishes the terminal snapshot, the
// completion event, and any batch events, in that order.
func (m *Manager) finishJob(job Job, started time.Time, state State, percent int, message, remoteID string, bytesSent int64) {
	m.mu.Lock()
	delete(m.jobs, job.ID)

	var (
		bp        BatchProgress
		member    bool
		batchDone bool
	)
	if m.batch != nil {
		if p, ok := m.batch.settle(job.ID, state == StateCompleted); ok {
			bp, member = p, true
			if p.Done() {
				batchDone = true
				m.batch = nil
			}
		}
	}
	m.mu.Unlock()

	UploadsTotal.WithLabelValues(string(state)).Inc()
	UploadDuration.Observe(m.now().Sub(started).Seconds())

	snap := Snapshot{JobID: job.ID, Percent: percent, State: state, Message: message}
	m.bus.publish(Event{Type: EventJobProgress, JobID: job.ID, Snapshot: &snap})

	evt := Event{
		Type:     EventJobCompleted,
		JobID:    job.ID,
		Success:  state == StateCompleted,
		RemoteID: remoteID,
	}
	if state != StateCompleted {
		evt.Err = message
	}
	m.bus.publish(evt)

	if member {
		batch := bp
		m.bus.publish(Event{Type: EventBatchProgress, JobID: job.ID, Batch: &batch})
		if batchDone {
			BatchesCompletedTotal.Inc()
			final := bp
			m.bus.publish(Event{Type: EventBatchCompleted, Batch: &final})
			logger.Info().
				Int("completed", bp.Completed).
				Int("failed", bp.Failed).
				Msg("uploader: batch finished")
		}
	}

	if m.history != nil {
		rec := history.Record{
			JobID:       job.ID,
			Path:        job.Path,
			Title:       job.Title,
			RemoteID:    remoteID,
			Success:     state == StateCompleted,
			CompletedAt: m.now(),
			Duration:    m.now().Sub(started),
			BytesSent:   bytesSent,
		}
		if state != StateCompleted {
			rec.Error = message
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.history.Append(ctx, rec); err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("uploader: history append failed")
		}
		cancel()
	}
}
