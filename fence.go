// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import "context"

// Fence is a waitable, non-decreasing sequence value.
//
// The pipeline publishes two fences: CPUCoherent, which reaches N once the
// CPU-visible effects of chunk N are complete, and FrameLatency, which is
// signaled with values requested by chunks for frame pacing.
//
// Fence is safe for concurrent use.
type Fence struct {
	c *seqCounter
}

// NewFence returns a fence holding initial.
func NewFence(initial uint64) *Fence {
	return &Fence{c: newSeqCounter(initial)}
}

// Value returns the last signaled value.
func (f *Fence) Value() uint64 { return f.c.load() }

// Signal raises the fence to v and wakes waiters. Values not greater than
// the current one are ignored.
func (f *Fence) Signal(v uint64) { f.c.storeMax(v) }

// Wait blocks until the fence reaches v. It returns ctx.Err() when ctx is
// done first and ErrClosed when the owning pipeline shuts down first.
func (f *Fence) Wait(ctx context.Context, v uint64) error {
	return f.c.waitFor(ctx, v)
}

// Reached reports whether the fence is at or past v.
func (f *Fence) Reached(v uint64) bool { return f.c.load() >= v }

// close releases all waiters with ErrClosed unless already satisfied.
func (f *Fence) close() { f.c.interrupt() }
