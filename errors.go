// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrNilDriver is returned by New when no driver is supplied.
	ErrNilDriver = errors.New("cmdqueue: driver is nil")

	// ErrInvalidCapacity is returned when the chunk ring is too small to
	// keep one chunk recordable while others are in flight.
	ErrInvalidCapacity = errors.New("cmdqueue: ring capacity must be at least 2")

	// ErrInvalidHeapSize is returned for a non-positive chunk heap size.
	ErrInvalidHeapSize = errors.New("cmdqueue: chunk heap size must be positive")

	// ErrHeapExhausted is returned by Chunk.Alloc when the chunk's CPU heap
	// cannot satisfy the request. The caller should commit and retry.
	ErrHeapExhausted = errors.New("cmdqueue: chunk heap exhausted")

	// ErrClosed is returned by waits on a pipeline that has been closed.
	ErrClosed = errors.New("cmdqueue: pipeline closed")
)

// DeviceError describes a command buffer that completed in an error state.
// It is reported by the finish stage; the pipeline keeps running.
type DeviceError struct {
	// ChunkID is the sequence number of the failed chunk.
	ChunkID uint64

	// Frame is the frame index the chunk was recorded in.
	Frame uint64

	// Err is the driver-reported error. Never nil.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("cmdqueue: device error at frame %d (chunk %d): %v", e.Frame, e.ChunkID, e.Err)
}

// Unwrap returns the driver error.
func (e *DeviceError) Unwrap() error { return e.Err }
