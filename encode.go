// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"runtime"
	"time"

	"github.com/gogpu/cmdqueue/internal/osthread"
)

// Worker thread names.
const (
	encodeThreadName = "cmdqueue-encode"
	finishThreadName = "cmdqueue-finish"
)

// encodeLoop is the encode worker. It takes chunks strictly in commit order,
// encodes each into a fresh native command buffer and submits it.
func encodeLoop(p *Pipeline) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.tuneThread(encodeThreadName)

	seq := uint64(1)
	for !p.stopped.Load() {
		if _, ok := p.readyForEncode.waitChange(seq); !ok || p.stopped.Load() {
			break
		}
		p.encodeChunk(p.ring.slot(seq), seq)
		seq++
	}
	p.log.Debug("cmdqueue: encode worker terminates", "next_seq", seq)
}

// encodeChunk runs the capture state machine, encodes the chunk, submits it
// and publishes it to the finish worker.
func (p *Pipeline) encodeChunk(chunk *Chunk, seq uint64) {
	p.applyCaptureAction(p.capture.nextAction(chunk.frame), chunk.frame)

	cb := p.driver.CommandBuffer()
	chunk.cmdbuf = cb
	ctx := &EncodingContext{
		Seq:         seq,
		Frame:       chunk.frame,
		Staging:     p.opts.staging,
		CopyTemp:    p.opts.copyTemp,
		CommandData: p.opts.commandData,
		Chunk:       chunk,
	}
	p.encoder.Encode(chunk, cb, ctx)
	cb.Commit()

	p.readyForCommit.add(1)
}

// applyCaptureAction talks to the capture service. Failures are logged and
// never stop encoding.
func (p *Pipeline) applyCaptureAction(action CaptureAction, frame uint64) {
	svc := p.opts.capture
	switch action {
	case CaptureStart:
		cfg := CaptureConfig{
			Device:      p.opts.deviceLabel,
			Destination: CaptureToTraceDocument,
			OutputPath:  CaptureOutputPath(executableBaseName(), p.opts.captureDir, time.Now()),
			Frame:       frame,
		}
		if svc == nil {
			p.log.Warn("cmdqueue: capture requested without a capture service", "frame", frame)
			return
		}
		p.log.Warn("cmdqueue: a new capture will be saved", "path", cfg.OutputPath, "frame", frame)
		if err := svc.StartCapture(cfg); err != nil {
			p.log.Warn("cmdqueue: start capture failed", "frame", frame, "err", err)
		}
	case CaptureStop:
		if svc == nil {
			return
		}
		if err := svc.StopCapture(); err != nil {
			p.log.Warn("cmdqueue: stop capture failed", "frame", frame, "err", err)
		}
	}
}

// tuneThread names the locked OS thread and raises its priority.
func (p *Pipeline) tuneThread(name string) {
	if err := osthread.Configure(name, p.opts.elevated); err != nil {
		p.log.Debug("cmdqueue: thread tuning incomplete", "thread", name, "err", err)
	}
}
