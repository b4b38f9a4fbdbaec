// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cmdqueue is the command-submission pipeline of a graphics API
// translation layer.
//
// # Overview
//
// Work is recorded on the CPU into chunks, slots of a fixed ring. Committing
// a chunk hands it to a background encode worker that translates it into a
// native command buffer and submits it. A second background worker waits for
// each submission to complete, reports device errors, and returns the
// chunk's memory to the ring and to the sequence-tagged reclaimers.
//
//	producer --CommitCurrentChunk--> encode worker --Commit--> driver
//	    ^                                                        |
//	    +----- chunk ring <----- finish worker <--completion-----+
//
// # Quick Start
//
//	p, err := cmdqueue.New(driver, cmdqueue.WithRingCapacity(8))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	chunk := p.CurrentChunk()
//	chunk.Emit(cmdqueue.CommandFunc(func(ctx *cmdqueue.EncodingContext, cb cmdqueue.CommandBuffer) {
//	    // record native commands into cb
//	}))
//	p.CommitCurrentChunk()
//
//	// Block until the chunk's CPU-visible effects are complete.
//	err = p.CPUCoherent().Wait(ctx, p.LastCommitted())
//
// # Ordering
//
// Chunks are encoded, submitted and finished in exactly the order they were
// committed. The stages never share a lock on a chunk: ownership follows
// from three monotonically increasing counters (ready for encode, ready for
// commit, CPU coherent) plus the in-flight count that implements
// back-pressure.
//
// # Errors
//
// Device errors and command buffer diagnostics are logged by the finish
// worker and optionally passed to WithErrorHandler. They never reach the
// producer, whose commit call has long returned by then.
//
// # Capture
//
// A one-shot GPU capture can be scheduled at a frame (WithCaptureFrame,
// ScheduleCapture) or requested for the next frame (RequestCapture). The
// session is opened through the injected CaptureService.
//
// # Logging
//
// See SetLogger. The package is silent by default.
package cmdqueue
