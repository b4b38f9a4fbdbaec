// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reclaim

import "github.com/gogpu/cmdqueue"

// Set bundles the three allocators a pipeline reclaims after every chunk.
type Set struct {
	Staging     *Allocator
	CopyTemp    *Allocator
	CommandData *Allocator
}

// NewSet creates one allocator per class sharing source and config.
// config.Class is ignored.
func NewSet(source Source, config Config) *Set {
	newFor := func(c Class) *Allocator {
		cfg := config
		cfg.Class = c
		return NewAllocator(source, cfg)
	}
	return &Set{
		Staging:     newFor(ClassStaging),
		CopyTemp:    newFor(ClassCopyTemp),
		CommandData: newFor(ClassCommandData),
	}
}

// Option wires the set into a pipeline.
func (s *Set) Option() cmdqueue.Option {
	return cmdqueue.WithReclaimers(s.Staging, s.CopyTemp, s.CommandData)
}

// Stats returns the statistics of every allocator in class order.
func (s *Set) Stats() []Stats {
	return []Stats{s.Staging.Stats(), s.CopyTemp.Stats(), s.CommandData.Stats()}
}

// Close releases every allocator.
func (s *Set) Close() {
	s.Staging.Close()
	s.CopyTemp.Close()
	s.CommandData.Close()
}
