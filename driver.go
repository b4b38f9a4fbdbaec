// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"fmt"
	"time"
)

// CommandBufferStatus is the execution state of a native command buffer.
// The order matters: every status up to StatusScheduled is non-terminal.
type CommandBufferStatus int

const (
	// StatusPending means the buffer is recording or committed but not yet
	// picked up by the GPU scheduler.
	StatusPending CommandBufferStatus = iota

	// StatusScheduled means the GPU has accepted the buffer for execution.
	StatusScheduled

	// StatusCompleted means the GPU finished executing the buffer.
	StatusCompleted

	// StatusError means execution stopped because of an error. Err reports it.
	StatusError
)

// String returns the status name.
func (s CommandBufferStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusScheduled:
		return "Scheduled"
	case StatusCompleted:
		return "Completed"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("CommandBufferStatus(%d)", int(s))
	}
}

// Terminal reports whether the status is Completed or Error.
func (s CommandBufferStatus) Terminal() bool {
	return s > StatusScheduled
}

// Driver is the native queue the pipeline submits to.
//
// CommandBuffer must always return a usable buffer. Drivers that fail to
// allocate one return a buffer already in StatusError so the failure flows
// to the finish stage like any other device error.
type Driver interface {
	CommandBuffer() CommandBuffer
}

// CommandBuffer is a native command buffer.
//
// Commit and the recording done by a ChunkEncoder happen on the encode
// worker. Status, WaitUntilCompleted, Err and Logs are called by the finish
// worker after Commit returned.
type CommandBuffer interface {
	// Commit submits the buffer for execution without blocking.
	Commit()

	// Status returns the current execution state.
	Status() CommandBufferStatus

	// WaitUntilCompleted blocks until Status is terminal.
	WaitUntilCompleted()

	// Err returns the execution error when Status is StatusError.
	Err() error

	// Logs returns diagnostic messages attached to the buffer, if any.
	Logs() []string
}

// ChunkEncoder translates a chunk's recorded work into native commands.
type ChunkEncoder interface {
	Encode(chunk *Chunk, cb CommandBuffer, ctx *EncodingContext)
}

// Command is one unit of recorded work. Commands are emitted into a chunk by
// the producer and replayed, in emission order, on the encode worker.
type Command interface {
	Encode(ctx *EncodingContext, cb CommandBuffer)
}

// CommandFunc adapts a function to the Command interface.
type CommandFunc func(ctx *EncodingContext, cb CommandBuffer)

// Encode calls f.
func (f CommandFunc) Encode(ctx *EncodingContext, cb CommandBuffer) { f(ctx, cb) }

// Reclaimer releases memory whose lifetime is bound to a chunk sequence.
// FreeBlocks releases every block tagged with a sequence <= seq and must be
// safe to call concurrently with allocation.
type Reclaimer interface {
	FreeBlocks(seq uint64)
}

// CaptureDestination selects where a capture session writes its output.
type CaptureDestination int

const (
	// CaptureToTraceDocument writes the capture to a trace file.
	CaptureToTraceDocument CaptureDestination = iota

	// CaptureToDeveloperTools hands the capture to an attached tool.
	CaptureToDeveloperTools
)

// CaptureConfig describes a capture session to start.
type CaptureConfig struct {
	// Device labels the captured device.
	Device string

	// Destination selects the capture sink.
	Destination CaptureDestination

	// OutputPath is the trace file written for CaptureToTraceDocument.
	OutputPath string

	// Frame is the frame index the capture starts at.
	Frame uint64
}

// CaptureService opens and closes external GPU capture sessions.
type CaptureService interface {
	StartCapture(cfg CaptureConfig) error
	StopCapture() error
}

// StatisticsRecorder receives per-commit statistics.
// RecordCommit is called on the producer goroutine.
type StatisticsRecorder interface {
	RecordCommit(frame uint64, wait time.Duration)
}

// EncodingContext is handed to the chunk encoder and to every command.
// It is only valid during the Encode call.
type EncodingContext struct {
	// Seq is the chunk being encoded. Blocks allocated for it must be
	// tagged with Seq so that reclaimers free them once Seq completes.
	Seq uint64

	// Frame is the chunk's frame index.
	Frame uint64

	// Staging, CopyTemp and CommandData are the pipeline's reclaimers.
	// Any of them may be nil.
	Staging     Reclaimer
	CopyTemp    Reclaimer
	CommandData Reclaimer

	// Chunk is the chunk being encoded. Its heap holds the data the
	// producer allocated with Chunk.Alloc.
	Chunk *Chunk
}

// CommandListEncoder is the default ChunkEncoder: it replays the chunk's
// emitted commands in order.
type CommandListEncoder struct{}

// Encode implements ChunkEncoder.
func (CommandListEncoder) Encode(chunk *Chunk, cb CommandBuffer, ctx *EncodingContext) {
	for _, cmd := range chunk.commands {
		cmd.Encode(ctx, cb)
	}
}
