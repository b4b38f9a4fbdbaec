// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"fmt"

	"github.com/gogpu/cmdqueue/internal/arena"
)

// NoSignal marks a chunk that does not signal the frame latency fence.
const NoSignal = ^uint64(0)

// Heap is a chunk's fixed-capacity CPU scratch heap.
// See internal/arena for the allocation rules.
type Heap = arena.Arena

// Chunk is one slot of the command ring: an independent unit of recordable
// GPU work with its own CPU scratch heap.
//
// Ownership moves between the producer, the encode worker and the finish
// worker purely through the pipeline's sequence counters. The producer may
// only touch the chunk returned by Pipeline.CurrentChunk, and only until
// CommitCurrentChunk is called.
type Chunk struct {
	id      uint64
	eventID uint64
	frame   uint64

	heap     *Heap
	commands []Command

	// signalLatency is the frame latency fence value to signal on
	// completion, or NoSignal.
	signalLatency uint64

	// cmdbuf is set by the encode worker and cleared by the finish worker.
	cmdbuf CommandBuffer
}

// ID returns the chunk sequence number. Slot i of a ring of capacity n only
// ever holds ids with id % n == i.
func (c *Chunk) ID() uint64 { return c.id }

// EventID returns the GPU synchronization sequence this chunk signals.
func (c *Chunk) EventID() uint64 { return c.eventID }

// Frame returns the frame index the chunk was committed in.
func (c *Chunk) Frame() uint64 { return c.frame }

// Heap returns the chunk's CPU scratch heap.
func (c *Chunk) Heap() *Heap { return c.heap }

// CommandBuffer returns the native command buffer the chunk was submitted
// on. It is nil outside the encode..finish window.
func (c *Chunk) CommandBuffer() CommandBuffer { return c.cmdbuf }

// Commands returns the recorded commands in emission order.
func (c *Chunk) Commands() []Command { return c.commands }

// Emit records a command into the chunk.
func (c *Chunk) Emit(cmd Command) {
	c.commands = append(c.commands, cmd)
}

// Alloc reserves size bytes with the given alignment from the chunk heap.
// It returns the zeroed slice and its offset within the heap.
func (c *Chunk) Alloc(size, align int) ([]byte, int, error) {
	b, off, err := c.heap.Alloc(size, align)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrHeapExhausted, err)
	}
	return b, off, nil
}

// SignalFrameLatency asks the finish worker to signal the pipeline's frame
// latency fence with v once this chunk completes.
func (c *Chunk) SignalFrameLatency(v uint64) {
	c.signalLatency = v
}

// reset clears the per-cycle state and recycles the heap.
func (c *Chunk) reset() {
	c.heap.Reset()
	clear(c.commands)
	c.commands = c.commands[:0]
	c.signalLatency = NoSignal
	c.cmdbuf = nil
}

// release frees the heap memory and any command buffer the finish worker
// never reached. Only called at pipeline shutdown, after the workers joined.
func (c *Chunk) release() {
	if r, ok := c.cmdbuf.(releaser); ok {
		r.Release()
	}
	c.reset()
	c.heap.Release()
}

// chunkRing is the fixed circular array of chunks.
type chunkRing struct {
	chunks []Chunk
}

func newChunkRing(capacity, heapSize int) *chunkRing {
	r := &chunkRing{chunks: make([]Chunk, capacity)}
	for i := range r.chunks {
		r.chunks[i].heap = arena.New(heapSize)
		r.chunks[i].reset()
	}
	return r
}

// slot returns the chunk that holds sequence seq.
func (r *chunkRing) slot(seq uint64) *Chunk {
	return &r.chunks[seq%uint64(len(r.chunks))]
}
