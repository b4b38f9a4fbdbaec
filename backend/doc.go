// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend provides a pluggable registry of native queue drivers.
//
// A driver is the lowest layer of a cmdqueue pipeline: it hands out the
// command buffers the encode worker records into and reports their
// completion to the finish worker.
//
// # Driver Registration
//
// Drivers are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/cmdqueue/backend/native"
//	import _ "github.com/gogpu/cmdqueue/backend/sim"
//
// # Driver Selection
//
// Use InitDefault to get the best driver that initializes on this machine,
// or Open to request a specific one by name:
//
//	d, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	p, err := cmdqueue.New(d)
//	...
//	defer p.Close()
//
// # Available Drivers
//
//   - "native": gogpu/wgpu HAL device (Vulkan by default)
//   - "sim": simulated GPU with configurable latency, always available
package backend
