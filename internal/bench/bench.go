// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bench drives a synthetic workload through a cmdqueue pipeline.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/reclaim"
)

// ErrInvalidWorkload is returned for workloads that commit nothing.
var ErrInvalidWorkload = errors.New("bench: workload needs at least one frame and one chunk per frame")

// Workload describes the synthetic load.
type Workload struct {
	// Frames is the number of frames to produce.
	Frames int

	// ChunksPerFrame is the number of chunks committed per frame.
	ChunksPerFrame int

	// HeapBytes is written into the chunk heap for every chunk.
	HeapBytes int

	// StagingBytes is allocated from the staging reclaimer for every chunk.
	// Ignored when the pipeline has no *reclaim.Allocator for staging.
	StagingBytes uint64

	// CaptureFrame, when non-zero, schedules a capture of that frame.
	CaptureFrame uint64

	// Work is handed to the command buffer of every chunk through Worker.
	Work time.Duration
}

// Worker is implemented by command buffers that can simulate GPU work.
type Worker interface {
	AddWork(d time.Duration)
}

// Validate checks the workload.
func (w Workload) Validate() error {
	if w.Frames <= 0 || w.ChunksPerFrame <= 0 || w.HeapBytes < 0 {
		return ErrInvalidWorkload
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Driver       string
	Chunks       uint64
	Frames       int
	Elapsed      time.Duration
	CommitWait   time.Duration
	DeviceErrors uint64
	StagingFails uint64
	Pipeline     cmdqueue.Stats
	Reclaim      []reclaim.Stats
}

// ChunksPerSecond returns the completed chunk rate.
func (r Report) ChunksPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Chunks) / r.Elapsed.Seconds()
}

// Print writes a human-readable report.
func (r Report) Print(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "driver:        %s\n", r.Driver)
	p.Fprintf(w, "chunks:        %d in %d frames\n", r.Chunks, r.Frames)
	p.Fprintf(w, "elapsed:       %v\n", r.Elapsed.Round(time.Microsecond))
	p.Fprintf(w, "throughput:    %.1f chunks/s\n", r.ChunksPerSecond())
	p.Fprintf(w, "commit wait:   %v\n", r.CommitWait.Round(time.Microsecond))
	p.Fprintf(w, "device errors: %d\n", r.DeviceErrors)
	if r.StagingFails > 0 {
		p.Fprintf(w, "staging fails: %d\n", r.StagingFails)
	}
	p.Fprintf(w, "pipeline:      %s\n", r.Pipeline)
	for _, s := range r.Reclaim {
		p.Fprintf(w, "reclaim:       %s\n", s)
	}
}

// Runner runs workloads on one pipeline.
type Runner struct {
	pipeline *cmdqueue.Pipeline
	driver   string
	set      *reclaim.Set

	deviceErrors atomic.Uint64
	stagingFails atomic.Uint64
}

// NewRunner creates a runner. set may be nil.
func NewRunner(p *cmdqueue.Pipeline, driver string, set *reclaim.Set) *Runner {
	return &Runner{pipeline: p, driver: driver, set: set}
}

// ErrorHandler returns a device error handler counting into the report.
// Pass it to cmdqueue.WithErrorHandler.
func (r *Runner) ErrorHandler() func(*cmdqueue.DeviceError) {
	return func(*cmdqueue.DeviceError) {
		r.deviceErrors.Add(1)
	}
}

// Run commits the workload and waits until every chunk is CPU coherent.
func (r *Runner) Run(ctx context.Context, w Workload) (Report, error) {
	if err := w.Validate(); err != nil {
		return Report{}, err
	}
	log := cmdqueue.Logger()
	if w.CaptureFrame > 0 {
		r.pipeline.ScheduleCapture(w.CaptureFrame)
	}

	start := time.Now()
	first := r.pipeline.LastCommitted() + 1
	var commitWait time.Duration

	for f := 0; f < w.Frames; f++ {
		frame := r.pipeline.AdvanceFrame()
		for c := 0; c < w.ChunksPerFrame; c++ {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			if err := r.fill(r.pipeline.CurrentChunk(), w); err != nil {
				return Report{}, err
			}
			r.pipeline.CommitCurrentChunk()
		}
		if s, ok := r.pipeline.Statistics(frame); ok {
			commitWait += s.CommitInterval
		}
	}

	last := r.pipeline.LastCommitted()
	if err := r.pipeline.CPUCoherent().Wait(ctx, last); err != nil {
		return Report{}, fmt.Errorf("bench: waiting for chunk %d: %w", last, err)
	}
	elapsed := time.Since(start)

	report := Report{
		Driver:       r.driver,
		Chunks:       last - first + 1,
		Frames:       w.Frames,
		Elapsed:      elapsed,
		CommitWait:   commitWait,
		DeviceErrors: r.deviceErrors.Load(),
		StagingFails: r.stagingFails.Load(),
		Pipeline:     r.pipeline.Stats(),
	}
	if r.set != nil {
		report.Reclaim = r.set.Stats()
	}
	log.Info("bench: run complete", "chunks", report.Chunks, "elapsed", elapsed)
	return report, nil
}

// fill writes the per-chunk payload and emits the chunk's command.
func (r *Runner) fill(chunk *cmdqueue.Chunk, w Workload) error {
	off := 0
	if w.HeapBytes > 0 {
		data, o, err := chunk.Alloc(w.HeapBytes, 16)
		if err != nil {
			return err
		}
		for i := range data {
			data[i] = byte(chunk.ID() + uint64(i))
		}
		off = o
	}

	chunk.Emit(cmdqueue.CommandFunc(func(ctx *cmdqueue.EncodingContext, cb cmdqueue.CommandBuffer) {
		if wk, ok := cb.(Worker); ok && w.Work > 0 {
			wk.AddWork(w.Work)
		}
		if w.StagingBytes == 0 {
			return
		}
		staging, ok := ctx.Staging.(*reclaim.Allocator)
		if !ok {
			return
		}
		block, err := staging.Alloc(ctx.Seq, w.StagingBytes, reclaim.DefaultAlignment)
		if err != nil {
			r.stagingFails.Add(1)
			return
		}
		if dst := block.Bytes(); dst != nil && w.HeapBytes > 0 {
			copy(dst, ctx.Chunk.Heap().Bytes(off, w.HeapBytes))
		}
	}))
	return nil
}
