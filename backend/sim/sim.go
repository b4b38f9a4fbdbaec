// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim provides a simulated GPU queue driver.
//
// The simulated GPU executes committed command buffers one at a time, in
// commit order, taking a configurable base latency plus whatever work the
// recorded commands added. Errors and diagnostic logs can be injected per
// buffer, which makes the driver useful for testing pipeline behavior and
// for benchmarking the CPU side without a device.
//
// The driver registers itself as "sim" on import.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/backend"
)

// ErrClosed is reported by buffers committed after Close.
var ErrClosed = errors.New("sim: driver closed")

// queueDepth bounds the buffers waiting for the simulated GPU.
const queueDepth = 4096

// init registers the simulated driver on package import.
func init() {
	backend.Register(backend.BackendSim, func() backend.Driver {
		return New()
	})
}

// Option configures a Driver.
type Option func(*Driver)

// WithLatency sets the base execution time of every buffer.
func WithLatency(d time.Duration) Option {
	return func(drv *Driver) {
		drv.latency = d
	}
}

// WithFaults injects a device error into buffer n (1-based, in creation
// order) whenever fault(n) returns non-nil.
func WithFaults(fault func(n uint64) error) Option {
	return func(drv *Driver) {
		drv.fault = fault
	}
}

// WithLogs attaches diagnostic log entries to buffer n.
func WithLogs(logs func(n uint64) []string) Option {
	return func(drv *Driver) {
		drv.logs = logs
	}
}

// Stats reports simulated GPU activity.
type Stats struct {
	Created   uint64
	Completed uint64
	Failed    uint64
	Busy      time.Duration
}

// Driver is a simulated GPU queue. It implements backend.Driver.
type Driver struct {
	latency time.Duration
	fault   func(n uint64) error
	logs    func(n uint64) []string

	mu     sync.Mutex
	queue  chan *CommandBuffer
	done   chan struct{}
	inited bool
	closed bool

	statsMu sync.Mutex
	stats   Stats
}

var _ backend.Driver = (*Driver)(nil)

// New creates a simulated driver. Call Init before use.
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the driver identifier.
func (d *Driver) Name() string { return backend.BackendSim }

// Init starts the simulated GPU. A closed driver can be initialized again.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inited && !d.closed {
		return nil
	}
	d.queue = make(chan *CommandBuffer, queueDepth)
	d.done = make(chan struct{})
	d.inited = true
	d.closed = false
	go d.execute(d.queue, d.done)

	cmdqueue.Logger().Debug("sim: driver initialized", "latency", d.latency)
	return nil
}

// Close stops the simulated GPU after it has executed every committed
// buffer.
func (d *Driver) Close() {
	d.mu.Lock()
	if !d.inited || d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	done := d.done
	d.mu.Unlock()

	<-done
	cmdqueue.Logger().Debug("sim: driver closed", "stats", d.Stats())
}

// SetLatency changes the base execution time of buffers committed later.
func (d *Driver) SetLatency(latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = latency
}

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// CommandBuffer implements cmdqueue.Driver.
func (d *Driver) CommandBuffer() cmdqueue.CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.statsMu.Lock()
	d.stats.Created++
	n := d.stats.Created
	d.statsMu.Unlock()

	cb := &CommandBuffer{
		drv:     d,
		n:       n,
		latency: d.latency,
		done:    make(chan struct{}),
	}
	if !d.inited {
		cb.finish(backend.ErrNotInitialized)
		return cb
	}
	if d.fault != nil {
		cb.fault = d.fault(cb.n)
	}
	if d.logs != nil {
		cb.logs = d.logs(cb.n)
	}
	return cb
}

// submit queues cb for execution, or fails it after Close.
func (d *Driver) submit(cb *CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.inited {
		cb.finish(ErrClosed)
		return
	}
	d.queue <- cb
}

// execute is the simulated GPU: one buffer at a time, in commit order.
func (d *Driver) execute(queue <-chan *CommandBuffer, done chan<- struct{}) {
	defer close(done)
	for cb := range queue {
		cb.setStatus(cmdqueue.StatusScheduled)
		busy := cb.duration()
		if busy > 0 {
			time.Sleep(busy)
		}
		cb.finish(cb.fault)

		d.statsMu.Lock()
		d.stats.Busy += busy
		d.stats.Completed++
		if cb.fault != nil {
			d.stats.Failed++
		}
		d.statsMu.Unlock()
	}
}
