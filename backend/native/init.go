// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/cmdqueue/backend"

	// Vulkan HAL backend for New.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// NameNoop identifies the driver over the HAL no-op device.
const NameNoop = "native-noop"

// init registers the native drivers on package import.
func init() {
	backend.Register(backend.BackendNative, func() backend.Driver {
		return New()
	})
	backend.Register(NameNoop, func() backend.Driver {
		return NewNoop()
	})
}
