// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdqueue"
)

// CommandBuffer records into a HAL command encoder and tracks its
// submission with a dedicated fence.
//
// Recording methods are called on the pipeline's encode worker; Status,
// WaitUntilCompleted and Release on its finish worker.
type CommandBuffer struct {
	device  hal.Device
	queue   hal.Queue
	timeout time.Duration
	label   string

	encoder   hal.CommandEncoder
	recording bool

	mu        sync.Mutex
	cmdBuf    hal.CommandBuffer
	fence     hal.Fence
	status    cmdqueue.CommandBufferStatus
	err       error
	logs      []string
	transient []hal.Buffer
}

var _ cmdqueue.CommandBuffer = (*CommandBuffer)(nil)

// begin creates the encoder and starts recording.
func (cb *CommandBuffer) begin() {
	encoder, err := cb.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: cb.label,
	})
	if err != nil {
		cb.fail(fmt.Errorf("native: create command encoder: %w", err))
		return
	}
	if err := encoder.BeginEncoding(cb.label); err != nil {
		cb.fail(fmt.Errorf("native: begin encoding: %w", err))
		return
	}
	cb.encoder = encoder
	cb.recording = true
}

// Label returns the encoder label.
func (cb *CommandBuffer) Label() string { return cb.label }

// Encoder returns the HAL encoder being recorded, or nil when the buffer
// failed or was committed.
func (cb *CommandBuffer) Encoder() hal.CommandEncoder {
	if !cb.recording {
		return nil
	}
	return cb.encoder
}

// Device returns the HAL device the buffer records for.
func (cb *CommandBuffer) Device() hal.Device { return cb.device }

// Queue returns the HAL queue the buffer is submitted to.
func (cb *CommandBuffer) Queue() hal.Queue { return cb.queue }

// Fail marks the buffer as failed. Recording is discarded and the error
// surfaces on the finish worker like a device error.
func (cb *CommandBuffer) Fail(err error) {
	if cb.recording {
		cb.encoder.DiscardEncoding()
		cb.recording = false
	}
	cb.fail(err)
}

// Track hands a buffer to the command buffer; it is destroyed on Release,
// after the GPU finished.
func (cb *CommandBuffer) Track(buf hal.Buffer) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transient = append(cb.transient, buf)
}

// Commit ends encoding and submits the buffer with a fresh fence.
func (cb *CommandBuffer) Commit() {
	if !cb.recording {
		return
	}
	cb.recording = false

	cmdBuf, err := cb.encoder.EndEncoding()
	if err != nil {
		cb.fail(fmt.Errorf("native: end encoding: %w", err))
		return
	}
	fence, err := cb.device.CreateFence()
	if err != nil {
		cb.device.FreeCommandBuffer(cmdBuf)
		cb.fail(fmt.Errorf("native: create fence: %w", err))
		return
	}

	cb.mu.Lock()
	cb.cmdBuf = cmdBuf
	cb.fence = fence
	cb.mu.Unlock()

	if err := cb.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		cb.fail(fmt.Errorf("native: submit: %w", err))
		return
	}

	cb.mu.Lock()
	if cb.status == cmdqueue.StatusPending {
		cb.status = cmdqueue.StatusScheduled
	}
	cb.mu.Unlock()
}

// Status polls the submission fence without blocking.
func (cb *CommandBuffer) Status() cmdqueue.CommandBufferStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.status != cmdqueue.StatusScheduled {
		return cb.status
	}
	done, err := cb.device.Wait(cb.fence, 1, 0)
	switch {
	case err != nil:
		cb.setErrorLocked(fmt.Errorf("native: poll fence: %w", err))
	case done:
		cb.status = cmdqueue.StatusCompleted
	}
	return cb.status
}

// WaitUntilCompleted blocks until the submission finishes or the fence
// timeout expires. A timeout is reported as a device error with a
// diagnostic log entry.
func (cb *CommandBuffer) WaitUntilCompleted() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.status != cmdqueue.StatusScheduled {
		return
	}
	done, err := cb.device.Wait(cb.fence, 1, cb.timeout)
	switch {
	case err != nil:
		cb.setErrorLocked(fmt.Errorf("native: wait for GPU: %w", err))
	case !done:
		cb.logs = append(cb.logs, fmt.Sprintf("%s: no completion after %v", cb.label, cb.timeout))
		cb.setErrorLocked(fmt.Errorf("%w after %v", ErrFenceTimeout, cb.timeout))
	default:
		cb.status = cmdqueue.StatusCompleted
	}
}

// Err returns the failure, if any.
func (cb *CommandBuffer) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// Logs returns diagnostic entries collected for the buffer.
func (cb *CommandBuffer) Logs() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.logs
}

// Release frees the HAL command buffer, the fence and tracked buffers.
// The pipeline's finish worker calls it once the buffer is terminal.
func (cb *CommandBuffer) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.cmdBuf != nil {
		cb.device.FreeCommandBuffer(cb.cmdBuf)
		cb.cmdBuf = nil
	}
	if cb.fence != nil {
		cb.device.DestroyFence(cb.fence)
		cb.fence = nil
	}
	for _, buf := range cb.transient {
		cb.device.DestroyBuffer(buf)
	}
	cb.transient = nil
}

func (cb *CommandBuffer) fail(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setErrorLocked(err)
}

// setErrorLocked records the first error. Caller must hold mu.
func (cb *CommandBuffer) setErrorLocked(err error) {
	if cb.status == cmdqueue.StatusError {
		return
	}
	cb.status = cmdqueue.StatusError
	cb.err = err
}
