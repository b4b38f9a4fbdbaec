// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"sync"
	"testing"
	"time"
)

// testTimeout bounds every blocking wait in the tests.
const testTimeout = 5 * time.Second

// mockBuffer implements CommandBuffer with test-controlled completion.
type mockBuffer struct {
	index int

	mu        sync.Mutex
	committed bool
	released  bool
	status    CommandBufferStatus
	err       error
	logs      []string
	done      chan struct{}
}

func (b *mockBuffer) Commit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = true
	if b.status == StatusPending {
		b.status = StatusScheduled
	}
}

func (b *mockBuffer) Status() CommandBufferStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *mockBuffer) WaitUntilCompleted() { <-b.done }

func (b *mockBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *mockBuffer) Logs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logs
}

func (b *mockBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// complete finishes the buffer, with err != nil meaning a device error.
func (b *mockBuffer) complete(err error) {
	b.mu.Lock()
	if err != nil {
		b.status = StatusError
		b.err = err
	} else {
		b.status = StatusCompleted
	}
	b.mu.Unlock()
	close(b.done)
}

// mockDriver hands out mockBuffers. With autoComplete set, every buffer
// completes on Commit, failing with failures[index] when present.
type mockDriver struct {
	autoComplete bool
	failures     map[int]error
	logs         map[int][]string

	mu      sync.Mutex
	buffers []*mockBuffer
	created chan *mockBuffer
}

func newMockDriver(autoComplete bool) *mockDriver {
	return &mockDriver{
		autoComplete: autoComplete,
		failures:     make(map[int]error),
		logs:         make(map[int][]string),
		created:      make(chan *mockBuffer, 1024),
	}
}

func (d *mockDriver) CommandBuffer() CommandBuffer {
	d.mu.Lock()
	b := &mockBuffer{index: len(d.buffers) + 1, done: make(chan struct{})}
	b.logs = d.logs[b.index]
	d.buffers = append(d.buffers, b)
	d.mu.Unlock()

	if d.autoComplete {
		return &autoBuffer{mockBuffer: b, err: d.failures[b.index]}
	}
	d.created <- b
	return b
}

// next returns the next buffer created by the encode worker.
func (d *mockDriver) next(t *testing.T) *mockBuffer {
	t.Helper()
	select {
	case b := <-d.created:
		return b
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the encode worker to create a command buffer")
		return nil
	}
}

// autoBuffer completes as soon as it is committed.
type autoBuffer struct {
	*mockBuffer
	err error
}

func (b *autoBuffer) Commit() {
	b.mockBuffer.Commit()
	b.complete(b.err)
}

// recordingEncoder replays commands and records encode order.
type recordingEncoder struct {
	mu     sync.Mutex
	ids    []uint64
	frames []uint64
}

func (e *recordingEncoder) Encode(chunk *Chunk, cb CommandBuffer, ctx *EncodingContext) {
	e.mu.Lock()
	e.ids = append(e.ids, chunk.ID())
	e.frames = append(e.frames, chunk.Frame())
	e.mu.Unlock()
	CommandListEncoder{}.Encode(chunk, cb, ctx)
}

func (e *recordingEncoder) encoded() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.ids...)
}

// mockReclaimer records FreeBlocks calls.
type mockReclaimer struct {
	mu    sync.Mutex
	freed []uint64
}

func (r *mockReclaimer) FreeBlocks(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freed = append(r.freed, seq)
}

func (r *mockReclaimer) calls() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.freed...)
}

// mockCapture records capture sessions.
type mockCapture struct {
	mu     sync.Mutex
	starts []CaptureConfig
	stops  int

	// encodedAtStart snapshots the encoder progress when a session starts.
	encoder        *recordingEncoder
	encodedAtStart []int
}

func (c *mockCapture) StartCapture(cfg CaptureConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, cfg)
	if c.encoder != nil {
		c.encodedAtStart = append(c.encodedAtStart, len(c.encoder.encoded()))
	}
	return nil
}

func (c *mockCapture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

// waitCoherent blocks until chunk seq has finished.
func waitCoherent(t *testing.T, p *Pipeline, seq uint64) {
	t.Helper()
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := p.CPUCoherent().Wait(ctx, seq); err != nil {
		t.Fatalf("waiting for chunk %d: %v (stats %v)", seq, err, p.Stats())
	}
}

// produce runs a producer loop on its own goroutine and fails the test
// with the pipeline counters if the loop is still blocked after testTimeout.
// fn must not call t.Fatal.
func produce(t *testing.T, p *Pipeline, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("producer blocked in CommitCurrentChunk; stats %v", p.Stats())
	}
}

// newTestPipeline creates a pipeline that is closed at test cleanup.
func newTestPipeline(t *testing.T, d Driver, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithElevatedPriority(false)}, opts...)
	p, err := New(d, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}
