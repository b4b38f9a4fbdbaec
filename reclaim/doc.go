// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package reclaim provides sequence-tagged block allocators for memory the
// GPU reads after the CPU has moved on.
//
// Commands allocate blocks while their chunk is encoded, tagging each block
// with the chunk sequence from cmdqueue.EncodingContext. When the pipeline's
// finish worker completes chunk N it calls FreeBlocks(N), and every page
// whose blocks are all tagged <= N returns to the pool.
//
// # Usage
//
//	set := reclaim.NewSet(reclaim.HostSource{}, reclaim.Config{})
//	defer set.Close()
//
//	p, err := cmdqueue.New(driver, set.Option())
//	...
//	// inside a Command:
//	blk, err := set.Staging.Alloc(ctx.Seq, 256, 0)
//
// GPU-backed pages come from a Source such as the one in backend/native.
package reclaim
