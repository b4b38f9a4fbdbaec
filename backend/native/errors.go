// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/cmdqueue/backend"
)

// Package errors for the native driver.
var (
	// ErrNotInitialized is returned when command buffers are requested
	// before Init.
	ErrNotInitialized = fmt.Errorf("native: %w", backend.ErrNotInitialized)

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNilDevice is returned when a driver is built without a device.
	ErrNilDevice = errors.New("native: device is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL types.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL types")

	// ErrFenceTimeout is reported when a submission does not complete in
	// time.
	ErrFenceTimeout = errors.New("native: GPU fence wait timed out")

	// ErrNotNativeBuffer is reported when a native command is encoded into
	// a command buffer from another driver.
	ErrNotNativeBuffer = errors.New("native: command buffer is not a native command buffer")

	// ErrNoStagingAllocator is reported when an upload runs without a
	// native staging allocator.
	ErrNoStagingAllocator = errors.New("native: upload needs a staging allocator backed by BufferSource")
)
