// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"sync"
	"time"

	"github.com/gogpu/cmdqueue"
)

// CommandBuffer is a simulated command buffer.
type CommandBuffer struct {
	drv     *Driver
	n       uint64
	latency time.Duration
	fault   error
	logs    []string
	done    chan struct{}

	mu        sync.Mutex
	status    cmdqueue.CommandBufferStatus
	err       error
	work      time.Duration
	commands  int
	committed bool
}

var _ cmdqueue.CommandBuffer = (*CommandBuffer)(nil)

// Index returns the buffer's 1-based creation index.
func (cb *CommandBuffer) Index() uint64 { return cb.n }

// AddWork records a command that keeps the simulated GPU busy for d.
// It has no effect after Commit.
func (cb *CommandBuffer) AddWork(d time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return
	}
	cb.work += d
	cb.commands++
}

// Commands returns the number of recorded commands.
func (cb *CommandBuffer) Commands() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.commands
}

// Commit implements cmdqueue.CommandBuffer.
func (cb *CommandBuffer) Commit() {
	cb.mu.Lock()
	if cb.committed || cb.status.Terminal() {
		cb.mu.Unlock()
		return
	}
	cb.committed = true
	cb.mu.Unlock()

	cb.drv.submit(cb)
}

// Status implements cmdqueue.CommandBuffer.
func (cb *CommandBuffer) Status() cmdqueue.CommandBufferStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

// WaitUntilCompleted implements cmdqueue.CommandBuffer.
func (cb *CommandBuffer) WaitUntilCompleted() { <-cb.done }

// Err implements cmdqueue.CommandBuffer.
func (cb *CommandBuffer) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// Logs implements cmdqueue.CommandBuffer.
func (cb *CommandBuffer) Logs() []string { return cb.logs }

func (cb *CommandBuffer) duration() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.latency + cb.work
}

func (cb *CommandBuffer) setStatus(s cmdqueue.CommandBufferStatus) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.status.Terminal() {
		cb.status = s
	}
}

// finish moves the buffer to a terminal status and wakes waiters.
func (cb *CommandBuffer) finish(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status.Terminal() {
		return
	}
	if err != nil {
		cb.status = cmdqueue.StatusError
		cb.err = err
	} else {
		cb.status = cmdqueue.StatusCompleted
	}
	close(cb.done)
}
