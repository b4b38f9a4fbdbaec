// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdqueue/reclaim"
)

// BufferPage is a reclaim page backed by a GPU buffer.
type BufferPage struct {
	Buffer hal.Buffer
	Size   uint64

	device hal.Device
}

// Release destroys the buffer.
func (p *BufferPage) Release() {
	if p.Buffer != nil {
		p.device.DestroyBuffer(p.Buffer)
		p.Buffer = nil
	}
}

// BufferSource creates reclaim pages as GPU buffers. The buffer usage
// depends on the allocator class.
type BufferSource struct {
	device hal.Device
	queue  hal.Queue
}

var _ reclaim.Source = (*BufferSource)(nil)

// NewBufferSource returns a source creating buffers on device.
func NewBufferSource(device hal.Device, queue hal.Queue) (*BufferSource, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &BufferSource{device: device, queue: queue}, nil
}

// NewPage implements reclaim.Source.
func (s *BufferSource) NewPage(class reclaim.Class, size uint64) (reclaim.Page, error) {
	if s.device == nil {
		return nil, ErrNotInitialized
	}
	buf, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("cmdqueue-%s", class),
		Size:  size,
		Usage: classUsage(class),
	})
	if err != nil {
		return nil, fmt.Errorf("native: create %s page (%d bytes): %w", class, size, err)
	}
	return &BufferPage{Buffer: buf, Size: size, device: s.device}, nil
}

func classUsage(class reclaim.Class) gputypes.BufferUsage {
	switch class {
	case reclaim.ClassStaging:
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case reclaim.ClassCopyTemp:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	}
}
