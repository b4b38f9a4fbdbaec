// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reclaim

// Class identifies the kind of blocks an allocator serves.
type Class int

const (
	// ClassStaging holds upload data written by the CPU and read by copies.
	ClassStaging Class = iota

	// ClassCopyTemp holds temporaries used between two GPU copies.
	ClassCopyTemp

	// ClassCommandData holds per-command arguments read by the GPU.
	ClassCommandData
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassStaging:
		return "staging"
	case ClassCopyTemp:
		return "copy-temp"
	case ClassCommandData:
		return "command-data"
	default:
		return "unknown"
	}
}

// Page is a block of memory obtained from a Source.
type Page interface {
	// Release returns the page to its source.
	Release()
}

// HostPage is a Page with a CPU-visible view.
type HostPage interface {
	Page
	Bytes() []byte
}

// Source creates pages for an Allocator.
type Source interface {
	NewPage(class Class, size uint64) (Page, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(class Class, size uint64) (Page, error)

// NewPage calls f.
func (f SourceFunc) NewPage(class Class, size uint64) (Page, error) { return f(class, size) }

// hostPage is CPU memory.
type hostPage struct {
	buf []byte
}

func (p *hostPage) Bytes() []byte { return p.buf }
func (p *hostPage) Release()      { p.buf = nil }

// HostSource allocates pages in CPU memory.
type HostSource struct{}

// NewPage implements Source.
func (HostSource) NewPage(_ Class, size uint64) (Page, error) {
	return &hostPage{buf: make([]byte, size)}, nil
}
