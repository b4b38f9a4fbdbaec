// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/cmdqueue"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested driver is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when a driver is used before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Driver names.
const (
	// BackendNative is the gogpu/wgpu HAL driver.
	BackendNative = "native"
	// BackendSim is the simulated driver.
	BackendSim = "sim"
)

// Driver is a cmdqueue.Driver with a lifecycle. Drivers register a factory
// via Register and are selected with Get, Open or InitDefault.
type Driver interface {
	cmdqueue.Driver

	// Name returns the driver identifier (e.g., "native", "sim").
	Name() string

	// Init acquires the device. It must succeed before CommandBuffer is
	// called.
	Init() error

	// Close releases the device. The pipeline using the driver must be
	// closed first.
	Close()
}
