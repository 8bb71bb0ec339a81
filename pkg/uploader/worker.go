// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vidlift/vidlift/pkg/logger"
	"github.com/vidlift/vidlift/pkg/transfer"
)

// TransferSession is one upload in flight, driven chunk by chunk.
type TransferSession interface {
	Size() int64
	NextChunk(ctx context.Context) (transfer.Chunk, error)
	Close() error
}

// TransferClient initiates upload sessions against the remote API.
type TransferClient interface {
	Start(ctx context.Context, path string, meta transfer.Metadata, token string) (TransferSession, error)
}

// WrapClient adapts a concrete transfer client to the TransferClient
// interface consumed by the manager.
func WrapClient(c *transfer.Client) TransferClient {
	return clientAdapter{c}
}

type clientAdapter struct {
	c *transfer.Client
}

func (a clientAdapter) Start(ctx context.Context, path string, meta transfer.Metadata, token string) (TransferSession, error) {
	sess, err := a.c.Start(ctx, path, meta, token)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Credentials gates uploads on a usable bearer token.
type Credentials interface {
	IsValid(ctx context.Context) bool
	GetCredential() (string, bool)
}

// worker executes one job from queued to a terminal state. Cancellation is
// cooperative: the flag is polled between chunks, never mid round-trip, so
// a cancelled upload always leaves the remote session in a defined state.
type worker struct {
	mgr *Manager
	job Job

	cancelled atomic.Bool

	// lastPercent and lastState track the most recent emission. A terminal
	// snapshot carries the percent forward so progress never appears to
	// move backward.
	lastPercent int
	lastState   State
	started     time.Time
}

func (w *worker) run(ctx context.Context) {
	defer w.mgr.wg.Done()

	ActiveUploads.Inc()
	defer ActiveUploads.Dec()

	w.started = w.mgr.now()
	log := logger.With().Str("job_id", w.job.ID).Str("path", w.job.Path).Logger()
	ctx = logger.WithLogger(ctx, &log)

	w.mgr.publish(Event{Type: EventJobStarted, JobID: w.job.ID})
	w.emit(StateQueued, percentQueued, "Queued")

	if w.cancelled.Load() {
		w.finish(StateCancelled, msgCancelled, "", 0)
		return
	}

	w.emit(StateAuthenticating, percentAuthenticating, "Authenticating")
	if !w.mgr.creds.IsValid(ctx) {
		log.Warn().Msg("uploader: no valid credential, failing job")
		w.finish(StateFailed, msgAuthRequired, "", 0)
		return
	}
	token, ok := w.mgr.creds.GetCredential()
	if !ok {
		w.finish(StateFailed, msgAuthRequired, "", 0)
		return
	}

	meta := transfer.Metadata{
		Title:       w.job.Title,
		Description: w.job.Description,
		PublishAt:   w.job.PublishAt,
	}
	sess, err := w.mgr.client.Start(ctx, w.job.Path, meta, token)
	if err != nil {
		log.Error().Err(err).Msg("uploader: session initiation failed")
		w.finish(StateFailed, failureMessage(err), "", 0)
		return
	}
	defer sess.Close()

	w.emit(StateUploading, percentUploadStart, "Uploading")
	tr := newTracker(w.job.ID, sess.Size(), w.mgr.now)

	var sent int64
	var remoteID string
	for {
		if w.cancelled.Load() {
			log.Info().Int64("bytes_sent", sent).Msg("uploader: job cancelled")
			w.finish(StateCancelled, msgCancelled, "", sent)
			return
		}

		chunk, err := sess.NextChunk(ctx)
		if err != nil {
			log.Error().Err(err).Int64("bytes_sent", sent).Msg("uploader: chunk failed")
			w.finish(StateFailed, failureMessage(err), "", sent)
			return
		}

		// The interface does not guarantee monotonic counts; a regressed
		// report must not panic the counter or move progress backward.
		if chunk.BytesSent > sent {
			UploadBytesTotal.Add(float64(chunk.BytesSent - sent))
			sent = chunk.BytesSent
			if snap, ok := tr.chunk(sent); ok {
				w.emitSnapshot(snap)
			}
		}
		if chunk.Done {
			remoteID = chunk.RemoteID
			break
		}
	}

	w.emit(StateProcessing, percentProcessing, "Processing video")
	w.emit(StateFinalizing, percentFinalizing, "Finalizing")

	log.Info().Str("remote_id", remoteID).Int64("bytes_sent", sent).Msg("uploader: upload completed")
	w.lastPercent = percentCompleted
	w.finish(StateCompleted, "Upload completed", remoteID, sent)
}

func (w *worker) emit(state State, percent int, message string) {
	w.emitSnapshot(Snapshot{
		JobID:   w.job.ID,
		Percent: percent,
		State:   state,
		Message: message,
	})
}

func (w *worker) emitSnapshot(snap Snapshot) {
	if snap.State != w.lastState && w.lastState != "" && !CanTransition(w.lastState, snap.State) {
		logger.Error().
			Str("job_id", w.job.ID).
			Str("from", string(w.lastState)).
			Str("to", string(snap.State)).
			Msg("uploader: dropping backward state transition")
		return
	}
	w.lastState = snap.State
	w.lastPercent = snap.Percent
	w.mgr.setProgress(w.job.ID, snap.State, snap.Percent)
	w.mgr.publish(Event{Type: EventJobProgress, JobID: w.job.ID, Snapshot: &snap})
}

func (w *worker) finish(state State, message, remoteID string, bytesSent int64) {
	w.mgr.finishJob(w.job, w.started, state, w.lastPercent, message, remoteID, bytesSent)
}

// failureMessage maps an error to the message carried by the terminal
// Failed snapshot.
func failureMessage(err error) string {
	var terr *transfer.Error
	if errors.As(err, &terr) {
		return terr.Message()
	}
	return err.Error()
}
