// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena provides the fixed-capacity CPU scratch heap owned by each
// command chunk.
//
// An Arena is a bump allocator over a single byte slice. Allocations are
// identified by their offset; there is no per-allocation bookkeeping.
// The whole arena is recycled with Reset once the GPU has consumed the
// chunk that owns it.
package arena

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when an allocation does not fit in the
// remaining capacity.
var ErrExhausted = errors.New("arena: capacity exhausted")

// ErrInvalidAlignment is returned when the requested alignment is not a
// power of two.
var ErrInvalidAlignment = errors.New("arena: alignment must be a power of two")

// DefaultAlignment is used when Alloc is called with align <= 0.
const DefaultAlignment = 16

// Arena is a fixed-capacity byte heap.
//
// Arena is NOT safe for concurrent use. Ownership is handed between
// goroutines by the command pipeline's sequence counters.
type Arena struct {
	buf  []byte
	used int
	peak int
}

// New allocates an arena with the given capacity in bytes.
// The backing memory lives until Release.
func New(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Alloc reserves size bytes aligned to align and returns the slice and its
// offset from the start of the arena. The returned slice is zeroed.
func (a *Arena) Alloc(size, align int) ([]byte, int, error) {
	if size < 0 {
		return nil, 0, fmt.Errorf("arena: negative size %d", size)
	}
	if align <= 0 {
		align = DefaultAlignment
	}
	if align&(align-1) != 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidAlignment, align)
	}

	offset := (a.used + align - 1) &^ (align - 1)
	end := offset + size
	if end > len(a.buf) {
		return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d, capacity %d",
			ErrExhausted, size, offset, len(a.buf))
	}

	a.used = end
	if end > a.peak {
		a.peak = end
	}
	b := a.buf[offset:end:end]
	clear(b)
	return b, offset, nil
}

// Bytes returns the allocation at offset with the given size.
func (a *Arena) Bytes(offset, size int) []byte {
	return a.buf[offset : offset+size : offset+size]
}

// Used returns the number of bytes handed out since the last Reset,
// including alignment padding.
func (a *Arena) Used() int { return a.used }

// Cap returns the arena capacity.
func (a *Arena) Cap() int { return len(a.buf) }

// Peak returns the high-water mark across all cycles.
func (a *Arena) Peak() int { return a.peak }

// Reset makes the whole capacity available again. Memory is kept.
func (a *Arena) Reset() {
	a.used = 0
}

// Release drops the backing memory. The arena has zero capacity afterwards.
func (a *Arena) Release() {
	a.buf = nil
	a.used = 0
}
