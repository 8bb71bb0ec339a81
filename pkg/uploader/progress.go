// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Percent checkpoints. Transfer progress is floored at the uploading
// checkpoint and capped at 90; the remainder is reserved for server-side
// processing the client cannot observe.
const (
	percentQueued         = 0
	percentAuthenticating = 5
	percentUploadStart    = 10
	percentTransferCap    = 90
	percentProcessing     = 95
	percentFinalizing     = 98
	percentCompleted      = 100
)

// emitInterval is the time-based floor for progress emission: a snapshot
// goes out when the integer percent changes or this much time has passed.
const emitInterval = 2 * time.Second

// Snapshot is a transient progress report, produced by a worker and
// consumed once by the manager/UI boundary.
type Snapshot struct {
	JobID      string  `json:"job_id"`
	Percent    int     `json:"percent"`
	State      State   `json:"state"`
	Message    string  `json:"message"`
	SpeedMBps  float64 `json:"speed_mbps,omitempty"`
	ETASeconds int     `json:"eta_seconds,omitempty"`
}

// tracker computes speed/ETA and throttles emission for one job.
type tracker struct {
	jobID string
	total int64
	now   func() time.Time

	start       time.Time
	lastPercent int
	lastEmit    time.Time
}

func newTracker(jobID string, total int64, now func() time.Time) *tracker {
	t := &tracker{jobID: jobID, total: total, now: now}
	t.start = now()
	t.lastPercent = -1
	return t
}

// chunk folds in a cumulative byte count and returns a snapshot when the
// throttle allows one.
func (t *tracker) chunk(bytesSent int64) (Snapshot, bool) {
	percent := percentUploadStart
	if t.total > 0 {
		percent = int(bytesSent * 100 / t.total)
	}
	// Clamp so job progress never moves backward past the uploading
	// checkpoint or ahead of the transfer cap.
	if percent < percentUploadStart {
		percent = percentUploadStart
	}
	if percent > percentTransferCap {
		percent = percentTransferCap
	}

	now := t.now()
	if percent == t.lastPercent && now.Sub(t.lastEmit) <= emitInterval {
		return Snapshot{}, false
	}

	uploadedMB := float64(bytesSent) / 1e6
	totalMB := float64(t.total) / 1e6
	elapsed := now.Sub(t.start).Seconds()

	var speed float64
	if elapsed > 0 {
		speed = uploadedMB / elapsed
	}
	var eta int
	if speed > 0 {
		eta = int((totalMB - uploadedMB) / speed)
	}

	t.lastPercent = percent
	t.lastEmit = now

	return Snapshot{
		JobID:      t.jobID,
		Percent:    percent,
		State:      StateUploading,
		Message:    progressMessage(bytesSent, t.total, speed, eta),
		SpeedMBps:  speed,
		ETASeconds: eta,
	}, true
}

// percent returns the last emitted percent (0 if none yet).
func (t *tracker) percent() int {
	if t.lastPercent < 0 {
		return 0
	}
	return t.lastPercent
}

func progressMessage(sent, total int64, speed float64, eta int) string {
	return fmt.Sprintf("%s / %s • %s • %s remaining",
		humanize.Bytes(uint64(sent)),
		humanize.Bytes(uint64(total)),
		formatSpeed(speed),
		formatETA(eta))
}

func formatSpeed(mbps float64) string {
	if mbps < 1 {
		return fmt.Sprintf("%.1f KB/s", mbps*1000)
	}
	return fmt.Sprintf("%.1f MB/s", mbps)
}

func formatETA(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
