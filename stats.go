// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"fmt"
	"sync"
	"time"
)

// frameStatisticsCount is how many recent frames keep statistics.
const frameStatisticsCount = 16

// FrameStatistics holds per-frame submission counters.
type FrameStatistics struct {
	// Frame is the frame index these numbers belong to.
	Frame uint64

	// CommandBufferCount is the number of chunks committed in the frame.
	CommandBufferCount uint64

	// CommitInterval is the total time the producer spent blocked on
	// back-pressure during the frame.
	CommitInterval time.Duration
}

// String returns a human-readable summary.
func (s FrameStatistics) String() string {
	return fmt.Sprintf("Frame[%d: %d command buffers, %v commit wait]",
		s.Frame, s.CommandBufferCount, s.CommitInterval)
}

// frameStatsRing keeps statistics for the most recent frames.
type frameStatsRing struct {
	mu     sync.Mutex
	frames [frameStatisticsCount]FrameStatistics
	valid  [frameStatisticsCount]bool
}

// countCommit counts a command buffer for frame. The producer calls it
// before the chunk is published.
func (r *frameStatsRing) countCommit(frame uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotLocked(frame).CommandBufferCount++
}

// addCommitWait adds the back-pressure wait of one commit to frame.
func (r *frameStatsRing) addCommitWait(frame uint64, wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotLocked(frame).CommitInterval += wait
}

// slotLocked returns the entry of frame, recycling the slot of an older
// frame. Caller must hold mu.
func (r *frameStatsRing) slotLocked(frame uint64) *FrameStatistics {
	i := frame % frameStatisticsCount
	if !r.valid[i] || r.frames[i].Frame != frame {
		r.frames[i] = FrameStatistics{Frame: frame}
		r.valid[i] = true
	}
	return &r.frames[i]
}

// get returns the statistics of frame if they are still retained.
func (r *frameStatsRing) get(frame uint64) (FrameStatistics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := frame % frameStatisticsCount
	if !r.valid[i] || r.frames[i].Frame != frame {
		return FrameStatistics{Frame: frame}, false
	}
	return r.frames[i], true
}

// Stats is a snapshot of the pipeline's sequence counters.
type Stats struct {
	// Capacity is the chunk ring size.
	Capacity int

	// ReadyForEncode is the next chunk id to be committed.
	ReadyForEncode uint64

	// ReadyForCommit is one past the last chunk submitted to the driver.
	ReadyForCommit uint64

	// ChunkOngoing is the number of chunks committed but not finished.
	ChunkOngoing uint64

	// CPUCoherent is the last chunk whose CPU-visible effects are complete.
	CPUCoherent uint64

	// Frame is the current frame index.
	Frame uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pipeline[encode=%d commit=%d ongoing=%d/%d coherent=%d frame=%d]",
		s.ReadyForEncode, s.ReadyForCommit, s.ChunkOngoing, s.Capacity-1, s.CPUCoherent, s.Frame)
}
