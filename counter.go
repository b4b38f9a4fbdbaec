// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"context"
	"sync"
)

// seqCounter is a monotonically used counter with wake-on-change waits.
//
// Every mutation closes the current broadcast channel and installs a fresh
// one, so any number of waiters can block on a change without polling and
// without missing a wakeup between reading the value and waiting.
type seqCounter struct {
	mu          sync.Mutex
	value       uint64
	changed     chan struct{}
	interrupted bool
}

func newSeqCounter(initial uint64) *seqCounter {
	return &seqCounter{value: initial, changed: make(chan struct{})}
}

// load returns the current value.
func (c *seqCounter) load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// add increments the counter and wakes all waiters. Returns the new value.
func (c *seqCounter) add(delta uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	c.broadcastLocked()
	return c.value
}

// sub decrements the counter and wakes all waiters. Returns the new value.
func (c *seqCounter) sub(delta uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value -= delta
	c.broadcastLocked()
	return c.value
}

// storeMax raises the counter to v. Lower values are ignored so the
// counter never goes backwards. Reports whether the value changed.
func (c *seqCounter) storeMax(v uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v <= c.value {
		return false
	}
	c.value = v
	c.broadcastLocked()
	return true
}

// interrupt releases every current and future waiter.
func (c *seqCounter) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
	c.broadcastLocked()
}

// snapshot returns the value, the channel closed on the next change and
// whether the counter was interrupted.
func (c *seqCounter) snapshot() (uint64, <-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.changed, c.interrupted
}

// waitChange blocks while the value equals old. It returns the new value,
// or old with ok=false once the counter is interrupted.
func (c *seqCounter) waitChange(old uint64) (uint64, bool) {
	for {
		v, ch, stop := c.snapshot()
		if stop {
			return v, false
		}
		if v != old {
			return v, true
		}
		<-ch
	}
}

// waitFor blocks until the value reaches target, the counter is
// interrupted or ctx is done.
func (c *seqCounter) waitFor(ctx context.Context, target uint64) error {
	for {
		v, ch, stop := c.snapshot()
		if v >= target {
			return nil
		}
		if stop {
			return ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *seqCounter) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
