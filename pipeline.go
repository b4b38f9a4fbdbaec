// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
)

// Pipeline turns committed chunks into submitted native command buffers and
// reclaims their resources once the GPU is done with them.
//
// A Pipeline owns the chunk ring, the sequence counters and two long-lived
// workers: the encode worker, which encodes and submits chunks in commit
// order, and the finish worker, which waits for their completion in the same
// order. The three stages communicate only through the counters.
//
// Thread safety: CurrentChunk, AdvanceFrame and CommitCurrentChunk belong to
// a single producer goroutine. Fences, Stats, Statistics and the capture
// requests are safe for concurrent use. Close must not run concurrently
// with CommitCurrentChunk.
type Pipeline struct {
	driver  Driver
	encoder ChunkEncoder
	opts    options
	log     *slog.Logger

	ring     *chunkRing
	capacity uint64

	// readyForEncode counts chunks handed to the encode worker; it is also
	// the id of the chunk being recorded. Starts at 1.
	readyForEncode *seqCounter

	// readyForCommit counts chunks submitted to the driver. Starts at 1.
	readyForCommit *seqCounter

	// chunkOngoing counts chunks committed but not yet finished.
	chunkOngoing *seqCounter

	cpuCoherent  *Fence
	frameLatency *Fence

	eventSeq atomic.Uint64
	frame    atomic.Uint64

	capture    captureState
	frameStats frameStatsRing

	stopped   atomic.Bool
	closeOnce sync.Once
	workers   conc.WaitGroup
}

// New creates a pipeline on top of driver and starts its workers.
func New(driver Driver, opts ...Option) (*Pipeline, error) {
	if driver == nil {
		return nil, ErrNilDriver
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, o.capacity)
	}
	if o.heapSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHeapSize, o.heapSize)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	log = pipelineLogger(log, o.deviceLabel, o.capacity)

	p := &Pipeline{
		driver:         driver,
		encoder:        o.encoder,
		opts:           o,
		log:            log,
		ring:           newChunkRing(o.capacity, o.heapSize),
		capacity:       uint64(o.capacity),
		readyForEncode: newSeqCounter(1),
		readyForCommit: newSeqCounter(1),
		chunkOngoing:   newSeqCounter(0),
		cpuCoherent:    NewFence(0),
		frameLatency:   NewFence(0),
	}

	// A malformed trigger value leaves capture inactive, silently.
	if frame, ok := ParseCaptureFrame(o.captureFrame); ok {
		p.capture.schedule(frame)
	}

	p.workers.Go(func() { encodeLoop(p) })
	p.workers.Go(func() { finishLoop(p) })

	p.log.Info("cmdqueue: pipeline started",
		"capacity", o.capacity,
		"heap_size", o.heapSize)
	return p, nil
}

// Capacity returns the chunk ring size.
func (p *Pipeline) Capacity() int { return int(p.capacity) }

// CurrentChunk returns the chunk the producer is recording into.
func (p *Pipeline) CurrentChunk() *Chunk {
	return p.ring.slot(p.readyForEncode.load())
}

// CommitCurrentChunk finalizes the current chunk and hands it to the encode
// worker. It blocks while ring capacity - 1 chunks are in flight, so that
// the next chunk slot is never one the workers still use.
//
// Failures are not reported here; device errors surface on the finish
// worker. Commits after Close are dropped with a warning.
func (p *Pipeline) CommitCurrentChunk() {
	if p.stopped.Load() {
		p.log.Warn("cmdqueue: commit after close ignored")
		return
	}

	id := p.readyForEncode.load()
	chunk := p.ring.slot(id)
	chunk.id = id
	chunk.eventID = p.NextEventID()
	chunk.frame = p.frame.Load()
	p.frameStats.countCommit(chunk.frame)

	p.readyForEncode.add(1)

	// The workers may finish this chunk before it is counted below, so
	// chunkOngoing can read -1 here. Compare as signed.
	start := time.Now()
	limit := int64(p.capacity - 1)
	for v := p.chunkOngoing.load(); int64(v) >= limit; {
		var ok bool
		if v, ok = p.chunkOngoing.waitChange(v); !ok {
			break
		}
	}
	p.chunkOngoing.add(1)
	wait := time.Since(start)

	p.frameStats.addCommitWait(chunk.frame, wait)
	if p.opts.stats != nil {
		p.opts.stats.RecordCommit(chunk.frame, wait)
	}
}

// LastCommitted returns the id of the most recently committed chunk, or 0.
// Wait on CPUCoherent with this value to synchronize with its completion.
func (p *Pipeline) LastCommitted() uint64 {
	return p.readyForEncode.load() - 1
}

// NextEventID allocates the next GPU event sequence number, starting at 1.
func (p *Pipeline) NextEventID() uint64 {
	return p.eventSeq.Add(1)
}

// Frame returns the current frame index.
func (p *Pipeline) Frame() uint64 { return p.frame.Load() }

// AdvanceFrame moves to the next frame and returns its index.
func (p *Pipeline) AdvanceFrame() uint64 { return p.frame.Add(1) }

// CPUCoherent returns the fence that reaches N once chunk N has finished and
// every block tagged with N or less has been reclaimed.
func (p *Pipeline) CPUCoherent() *Fence { return p.cpuCoherent }

// FrameLatencyFence returns the fence signaled by chunks that requested it
// through Chunk.SignalFrameLatency.
func (p *Pipeline) FrameLatencyFence() *Fence { return p.frameLatency }

// Statistics returns the statistics of a recent frame. ok is false when the
// frame had no commits or is too old to be retained.
func (p *Pipeline) Statistics(frame uint64) (FrameStatistics, bool) {
	return p.frameStats.get(frame)
}

// Stats returns a snapshot of the sequence counters.
func (p *Pipeline) Stats() Stats {
	// Later stages first so the snapshot keeps
	// cpuCoherent < readyForCommit <= readyForEncode.
	coherent := p.cpuCoherent.Value()
	ongoing := p.chunkOngoing.load()
	if int64(ongoing) < 0 {
		ongoing = 0
	}
	commit := p.readyForCommit.load()
	encode := p.readyForEncode.load()
	return Stats{
		Capacity:       int(p.capacity),
		ReadyForEncode: encode,
		ReadyForCommit: commit,
		ChunkOngoing:   ongoing,
		CPUCoherent:    coherent,
		Frame:          p.frame.Load(),
	}
}

// ScheduleCapture arms a one-shot capture of the given frame. It replaces
// any earlier pending request.
func (p *Pipeline) ScheduleCapture(frame uint64) { p.capture.schedule(frame) }

// RequestCapture asks for a capture of the next frame seen by the encode
// worker.
func (p *Pipeline) RequestCapture() { p.capture.requestNextFrame() }

// RequestCaptureStop ends the open capture session at the next chunk.
func (p *Pipeline) RequestCaptureStop() { p.capture.requestStop() }

// Capturing reports whether a capture session is open.
func (p *Pipeline) Capturing() bool { return p.capture.active() }

// Close stops both workers and releases the chunk heaps.
//
// Workers exit as soon as they observe the stop flag; chunks committed but
// not yet encoded are dropped. Close blocks until both workers have exited
// and is idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.log.Debug("cmdqueue: closing pipeline")
		p.stopped.Store(true)
		p.readyForEncode.interrupt()
		p.readyForCommit.interrupt()
		p.chunkOngoing.interrupt()

		p.workers.Wait()

		if p.capture.active() && p.opts.capture != nil {
			if err := p.opts.capture.StopCapture(); err != nil {
				p.log.Warn("cmdqueue: stop capture on close failed", "err", err)
			}
		}

		for i := range p.ring.chunks {
			p.ring.chunks[i].release()
		}
		p.cpuCoherent.close()
		p.frameLatency.close()
		p.log.Info("cmdqueue: pipeline closed", "stats", p.Stats().String())
	})
	return nil
}
