// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/reclaim"
)

// CopyBuffer records a buffer-to-buffer copy.
type CopyBuffer struct {
	Src       hal.Buffer
	Dst       hal.Buffer
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

var _ cmdqueue.Command = CopyBuffer{}

// Encode implements cmdqueue.Command.
func (c CopyBuffer) Encode(_ *cmdqueue.EncodingContext, cb cmdqueue.CommandBuffer) {
	ncb, ok := cb.(*CommandBuffer)
	if !ok {
		return
	}
	encoder := ncb.Encoder()
	if encoder == nil || c.Size == 0 {
		return
	}
	encoder.CopyBufferToBuffer(c.Src, c.Dst, []hal.BufferCopy{{
		SrcOffset: c.SrcOffset,
		DstOffset: c.DstOffset,
		Size:      c.Size,
	}})
}

// Upload copies bytes the producer wrote into the chunk heap to a GPU
// buffer. The bytes go through a staging block tagged with the chunk
// sequence, so the staging memory is reused once the chunk completes.
//
// The pipeline's staging reclaimer must be a *reclaim.Allocator whose pages
// come from a BufferSource.
type Upload struct {
	Dst        hal.Buffer
	DstOffset  uint64
	HeapOffset int
	Size       int
}

var _ cmdqueue.Command = Upload{}

// Encode implements cmdqueue.Command.
func (u Upload) Encode(ctx *cmdqueue.EncodingContext, cb cmdqueue.CommandBuffer) {
	ncb, ok := cb.(*CommandBuffer)
	if !ok || ncb.Encoder() == nil || u.Size <= 0 {
		return
	}
	staging, ok := ctx.Staging.(*reclaim.Allocator)
	if !ok || staging == nil {
		ncb.Fail(ErrNoStagingAllocator)
		return
	}

	block, err := staging.Alloc(ctx.Seq, uint64(u.Size), reclaim.DefaultAlignment)
	if err != nil {
		ncb.Fail(fmt.Errorf("native: upload %d bytes: %w", u.Size, err))
		return
	}
	page, ok := block.Page.(*BufferPage)
	if !ok {
		ncb.Fail(ErrNotNativeBuffer)
		return
	}

	data := ctx.Chunk.Heap().Bytes(u.HeapOffset, u.Size)
	ncb.Queue().WriteBuffer(page.Buffer, block.Offset, data)
	ncb.Encoder().CopyBufferToBuffer(page.Buffer, u.Dst, []hal.BufferCopy{{
		SrcOffset: block.Offset,
		DstOffset: u.DstOffset,
		Size:      uint64(u.Size),
	}})
}
