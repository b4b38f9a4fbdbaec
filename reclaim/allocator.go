// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reclaim

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/cmdqueue"
)

// Allocator errors.
var (
	// ErrBudgetExceeded is returned when a new page would exceed the budget.
	ErrBudgetExceeded = errors.New("reclaim: page budget exceeded")

	// ErrClosed is returned when allocating from a closed allocator.
	ErrClosed = errors.New("reclaim: allocator closed")

	// ErrInvalidSize is returned for zero-sized allocations.
	ErrInvalidSize = errors.New("reclaim: allocation size must be positive")
)

// Default allocator limits.
const (
	// DefaultPageSize is the size of a regular page (1 MB).
	DefaultPageSize = 1 << 20

	// DefaultBudget bounds the bytes held in pages (256 MB).
	DefaultBudget = 256 << 20

	// DefaultMaxFreePages is how many idle pages are kept for reuse.
	DefaultMaxFreePages = 4

	// DefaultAlignment is used when Alloc is called with align 0.
	DefaultAlignment = 16
)

// Stats contains allocator usage statistics.
type Stats struct {
	// Class is the allocator's block class.
	Class Class

	// BudgetBytes is the maximum number of bytes held in pages.
	BudgetBytes uint64

	// PageBytes is the number of bytes currently held in pages.
	PageBytes uint64

	// Pages is the number of live pages, including idle ones.
	Pages int

	// InFlightPages is the number of retired pages waiting for the GPU.
	InFlightPages int

	// FreePages is the number of idle pages kept for reuse.
	FreePages int

	// AllocatedBytes is the total number of bytes handed out.
	AllocatedBytes uint64

	// ReclaimedPages is the total number of pages recycled by FreeBlocks.
	ReclaimedPages uint64

	// LastFreed is the highest sequence passed to FreeBlocks.
	LastFreed uint64

	// Utilization is PageBytes / BudgetBytes (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of allocator stats.
func (s Stats) String() string {
	return fmt.Sprintf("Reclaim[%s: %.1f%% used, %d pages (%d in flight, %d free), %d reclaimed, freed<=%d]",
		s.Class,
		s.Utilization*100,
		s.Pages,
		s.InFlightPages,
		s.FreePages,
		s.ReclaimedPages,
		s.LastFreed)
}

// page is a Page with suballocation bookkeeping.
type page struct {
	Page
	size    uint64
	offset  uint64
	lastSeq uint64
}

// Block is a suballocation from a page.
type Block struct {
	// Page is the backing page.
	Page Page

	// Offset is the block offset within the page.
	Offset uint64

	// Size is the block size in bytes.
	Size uint64

	// Seq is the chunk sequence the block is tagged with.
	Seq uint64
}

// Bytes returns the CPU view of the block, or nil when the page has none.
func (b Block) Bytes() []byte {
	hp, ok := b.Page.(HostPage)
	if !ok {
		return nil
	}
	return hp.Bytes()[b.Offset : b.Offset+b.Size : b.Offset+b.Size]
}

// Config holds configuration for creating an Allocator.
type Config struct {
	// Class selects the page flavor requested from the source.
	Class Class

	// PageSize is the size of regular pages.
	// Defaults to DefaultPageSize if 0.
	PageSize uint64

	// Budget bounds the bytes held in pages.
	// Defaults to DefaultBudget if 0.
	Budget uint64

	// MaxFreePages bounds the idle pages kept for reuse.
	// Defaults to DefaultMaxFreePages if <= 0.
	MaxFreePages int
}

// Allocator hands out blocks tagged with a chunk sequence and recycles them
// once the pipeline reports that sequence finished.
//
// Blocks are bump-allocated from the current page. A page that runs out of
// room is retired with the highest sequence it served and is recycled by
// the first FreeBlocks call that covers that sequence. Allocations larger
// than the page size get a dedicated page.
//
// Allocator implements cmdqueue.Reclaimer and is safe for concurrent use:
// the encode worker allocates while the finish worker frees.
type Allocator struct {
	mu sync.Mutex

	source Source
	class  Class

	pageSize     uint64
	budget       uint64
	maxFreePages int

	current  *page
	inFlight *list.List // retired pages, oldest first
	free     []*page

	pageBytes      uint64
	pages          int
	allocatedBytes uint64
	reclaimedPages uint64
	lastFreed      uint64

	closed bool
}

var _ cmdqueue.Reclaimer = (*Allocator)(nil)

// NewAllocator creates an allocator drawing pages from source.
func NewAllocator(source Source, config Config) *Allocator {
	if config.PageSize == 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Budget == 0 {
		config.Budget = DefaultBudget
	}
	if config.MaxFreePages <= 0 {
		config.MaxFreePages = DefaultMaxFreePages
	}
	return &Allocator{
		source:       source,
		class:        config.Class,
		pageSize:     config.PageSize,
		budget:       config.Budget,
		maxFreePages: config.MaxFreePages,
		inFlight:     list.New(),
	}
}

// Class returns the allocator's block class.
func (a *Allocator) Class() Class { return a.class }

// Alloc reserves size bytes aligned to align for the chunk with sequence
// seq. The block stays valid until FreeBlocks(s) is called with s >= seq.
func (a *Allocator) Alloc(seq, size, align uint64) (Block, error) {
	if size == 0 {
		return Block{}, ErrInvalidSize
	}
	if align == 0 {
		align = DefaultAlignment
	}
	if align&(align-1) != 0 {
		return Block{}, fmt.Errorf("reclaim: alignment %d is not a power of two", align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Block{}, ErrClosed
	}

	if size > a.pageSize {
		p, err := a.newPageLocked(size)
		if err != nil {
			return Block{}, err
		}
		p.offset = size
		p.lastSeq = seq
		a.inFlight.PushBack(p)
		a.allocatedBytes += size
		return Block{Page: p.Page, Size: size, Seq: seq}, nil
	}

	if a.current != nil {
		if off := alignUp(a.current.offset, align); off+size <= a.current.size {
			return a.takeLocked(a.current, off, size, seq), nil
		}
		a.retireLocked()
	}

	p, err := a.nextPageLocked()
	if err != nil {
		return Block{}, err
	}
	a.current = p
	return a.takeLocked(p, 0, size, seq), nil
}

// FreeBlocks recycles every page whose blocks are all tagged with a
// sequence <= seq. It implements cmdqueue.Reclaimer.
func (a *Allocator) FreeBlocks(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq > a.lastFreed {
		a.lastFreed = seq
	}
	if a.closed {
		return
	}

	for e := a.inFlight.Front(); e != nil; {
		next := e.Next()
		if p, ok := e.Value.(*page); ok && p.lastSeq <= seq {
			a.inFlight.Remove(e)
			a.recycleLocked(p)
		}
		e = next
	}

	if a.current != nil && a.current.lastSeq <= seq {
		a.current.offset = 0
	}
}

// Stats returns current allocator statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var utilization float64
	if a.budget > 0 {
		utilization = float64(a.pageBytes) / float64(a.budget)
	}
	return Stats{
		Class:          a.class,
		BudgetBytes:    a.budget,
		PageBytes:      a.pageBytes,
		Pages:          a.pages,
		InFlightPages:  a.inFlight.Len(),
		FreePages:      len(a.free),
		AllocatedBytes: a.allocatedBytes,
		ReclaimedPages: a.reclaimedPages,
		LastFreed:      a.lastFreed,
		Utilization:    utilization,
	}
}

// Close releases every page. Blocks still referenced by in-flight GPU work
// must not be used afterwards, so Close belongs after the pipeline's Close.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if a.current != nil {
		a.releaseLocked(a.current)
		a.current = nil
	}
	for e := a.inFlight.Front(); e != nil; e = e.Next() {
		if p, ok := e.Value.(*page); ok {
			a.releaseLocked(p)
		}
	}
	a.inFlight.Init()
	for _, p := range a.free {
		a.releaseLocked(p)
	}
	a.free = nil
	a.closed = true

	cmdqueue.Logger().Debug("reclaim: allocator closed", "class", a.class.String())
}

// takeLocked carves a block out of p. Caller must hold mu.
func (a *Allocator) takeLocked(p *page, off, size, seq uint64) Block {
	p.offset = off + size
	if seq > p.lastSeq {
		p.lastSeq = seq
	}
	a.allocatedBytes += size
	return Block{Page: p.Page, Offset: off, Size: size, Seq: seq}
}

// retireLocked moves the current page to the in-flight list, or straight to
// the free pool when nothing in it is pending. Caller must hold mu.
func (a *Allocator) retireLocked() {
	p := a.current
	a.current = nil
	if p.lastSeq <= a.lastFreed {
		a.recycleLocked(p)
		return
	}
	a.inFlight.PushBack(p)
}

// nextPageLocked returns an idle page or a fresh one. Caller must hold mu.
func (a *Allocator) nextPageLocked() (*page, error) {
	if n := len(a.free); n > 0 {
		p := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		return p, nil
	}
	return a.newPageLocked(a.pageSize)
}

// newPageLocked asks the source for a page. Caller must hold mu.
func (a *Allocator) newPageLocked(size uint64) (*page, error) {
	if a.pageBytes+size > a.budget {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrBudgetExceeded, size, a.pageBytes, a.budget)
	}
	pg, err := a.source.NewPage(a.class, size)
	if err != nil {
		return nil, fmt.Errorf("reclaim: new %s page: %w", a.class, err)
	}
	a.pageBytes += size
	a.pages++
	return &page{Page: pg, size: size}, nil
}

// recycleLocked returns a finished page to the free pool, or releases it
// when the pool is full or the page is oversized. Caller must hold mu.
func (a *Allocator) recycleLocked(p *page) {
	a.reclaimedPages++
	p.offset = 0
	p.lastSeq = 0
	if p.size != a.pageSize || len(a.free) >= a.maxFreePages {
		a.releaseLocked(p)
		return
	}
	a.free = append(a.free, p)
}

// releaseLocked gives a page back to the source. Caller must hold mu.
func (a *Allocator) releaseLocked(p *page) {
	p.Release()
	a.pageBytes -= p.size
	a.pages--
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
