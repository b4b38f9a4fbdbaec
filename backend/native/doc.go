// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native provides a cmdqueue driver on top of the gogpu/wgpu HAL.
//
// Each command buffer records into its own HAL command encoder and is
// submitted with a dedicated fence. The finish worker waits on that fence,
// then releases the HAL command buffer and the fence.
//
// # Drivers
//
// New opens a standalone Vulkan device on Init. NewNoop uses the HAL no-op
// device, which completes every submission immediately. NewWithDevice and
// FromProvider share a device owned by the application (e.g., a gogpu
// window) and never destroy it:
//
//	drv, err := native.FromProvider(app.DeviceProvider())
//	if err != nil {
//		return err
//	}
//	p, err := cmdqueue.New(drv, drv.NewReclaimSet(reclaim.Config{}).Option())
//
// # Commands
//
// CopyBuffer and Upload record HAL copies. Upload moves bytes from the chunk
// heap through a staging block of the pipeline's staging allocator, so the
// allocator must draw its pages from the driver's BufferSource.
//
// Both drivers register on import: "native" and "native-noop".
package native
