// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"errors"
	"runtime"
)

// errUnknownDevice stands in when a driver reports StatusError without an
// error value.
var errUnknownDevice = errors.New("cmdqueue: command buffer failed without an error")

// releaser is implemented by command buffers that hold driver resources
// until the finish worker is done with them.
type releaser interface {
	Release()
}

// finishLoop is the finish worker. It waits for submitted chunks in
// submission order, reports device errors and recycles each chunk.
func finishLoop(p *Pipeline) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.tuneThread(finishThreadName)

	seq := uint64(1)
	for !p.stopped.Load() {
		if _, ok := p.readyForCommit.waitChange(seq); !ok || p.stopped.Load() {
			break
		}
		p.finishChunk(p.ring.slot(seq), seq)
		seq++
	}
	p.log.Debug("cmdqueue: finish worker terminates", "next_seq", seq)
}

// finishChunk completes one chunk. Reclaimers run before CPUCoherent is
// published, so a waiter that sees N also sees every block tagged <= N
// freed.
func (p *Pipeline) finishChunk(chunk *Chunk, seq uint64) {
	cb := chunk.cmdbuf
	if !cb.Status().Terminal() {
		cb.WaitUntilCompleted()
	}

	if cb.Status() == StatusError {
		err := cb.Err()
		if err == nil {
			err = errUnknownDevice
		}
		p.log.Error("cmdqueue: device error", "frame", chunk.frame, "chunk", seq, "err", err)
		if p.opts.errorHandler != nil {
			p.opts.errorHandler(&DeviceError{ChunkID: seq, Frame: chunk.frame, Err: err})
		}
	}
	for _, entry := range cb.Logs() {
		p.log.Error("cmdqueue: command buffer log", "frame", chunk.frame, "chunk", seq, "msg", entry)
	}

	if chunk.signalLatency != NoSignal {
		p.frameLatency.Signal(chunk.signalLatency)
	}

	if r, ok := cb.(releaser); ok {
		r.Release()
	}
	chunk.reset()

	for _, r := range [...]Reclaimer{p.opts.staging, p.opts.copyTemp, p.opts.commandData} {
		if r != nil {
			r.FreeBlocks(seq)
		}
	}

	p.cpuCoherent.Signal(seq)
	p.chunkOngoing.sub(1)
}
