// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), testTimeout)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		driver  Driver
		opts    []Option
		wantErr error
	}{
		{"nil driver", nil, nil, ErrNilDriver},
		{"ring too small", newMockDriver(true), []Option{WithRingCapacity(1)}, ErrInvalidCapacity},
		{"zero heap", newMockDriver(true), []Option{WithHeapSize(0)}, ErrInvalidHeapSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.driver, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if p != nil {
				t.Error("New() returned a pipeline on error")
			}
		})
	}
}

func TestCommitOrder(t *testing.T) {
	const commits = 200

	d := newMockDriver(true)
	enc := &recordingEncoder{}
	staging, copyTemp, commandData := &mockReclaimer{}, &mockReclaimer{}, &mockReclaimer{}

	var (
		mu      sync.Mutex
		payload []uint64
	)
	p := newTestPipeline(t, d,
		WithRingCapacity(4),
		WithHeapSize(64),
		WithEncoder(enc),
		WithReclaimers(staging, copyTemp, commandData),
	)

	produce(t, p, func() {
		for i := 0; i < commits; i++ {
			chunk := p.CurrentChunk()
			buf, off, err := chunk.Alloc(8, 8)
			if err != nil {
				t.Errorf("Alloc: %v", err)
				return
			}
			binary.LittleEndian.PutUint64(buf, uint64(i+1))

			chunk.Emit(CommandFunc(func(ctx *EncodingContext, _ CommandBuffer) {
				v := binary.LittleEndian.Uint64(ctx.Chunk.Heap().Bytes(off, 8))
				mu.Lock()
				payload = append(payload, v)
				mu.Unlock()
			}))
			p.CommitCurrentChunk()

			if s := p.Stats(); s.ChunkOngoing > uint64(p.Capacity()-1) {
				t.Errorf("commit %d: %d chunks in flight, ring capacity %d", i+1, s.ChunkOngoing, p.Capacity())
				return
			}
		}
	})
	if t.Failed() {
		return
	}

	waitCoherent(t, p, commits)

	ids := enc.encoded()
	if len(ids) != commits {
		t.Fatalf("encoded %d chunks, want %d", len(ids), commits)
	}
	for i, id := range ids {
		if id != uint64(i+1) {
			t.Fatalf("encode order[%d] = %d, want %d", i, id, i+1)
		}
	}

	mu.Lock()
	for i, v := range payload {
		if v != uint64(i+1) {
			t.Fatalf("chunk %d heap holds %d: heap overwritten while in flight", i+1, v)
		}
	}
	mu.Unlock()

	for name, r := range map[string]*mockReclaimer{"staging": staging, "copy-temp": copyTemp, "command-data": commandData} {
		freed := r.calls()
		if len(freed) != commits {
			t.Fatalf("%s: FreeBlocks called %d times, want %d", name, len(freed), commits)
		}
		for i, seq := range freed {
			if seq != uint64(i+1) {
				t.Fatalf("%s: FreeBlocks order[%d] = %d, want %d", name, i, seq, i+1)
			}
		}
	}

	if got := p.LastCommitted(); got != commits {
		t.Errorf("LastCommitted() = %d, want %d", got, commits)
	}
}

func TestChunkIDMatchesSlot(t *testing.T) {
	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(3), WithHeapSize(16))

	produce(t, p, func() {
		for i := 1; i <= 10; i++ {
			chunk := p.CurrentChunk()
			p.CommitCurrentChunk()
			if chunk.ID() != uint64(i) {
				t.Errorf("commit %d stamped id %d", i, chunk.ID())
				return
			}
			if chunk != &p.ring.chunks[chunk.ID()%3] {
				t.Errorf("chunk %d is not in slot %d", chunk.ID(), chunk.ID()%3)
				return
			}
			if chunk.EventID() != uint64(i) {
				t.Errorf("commit %d event id = %d", i, chunk.EventID())
			}
		}
	})
}

func TestBackPressure(t *testing.T) {
	d := newMockDriver(false)
	p := newTestPipeline(t, d, WithRingCapacity(4), WithHeapSize(16))

	// Capacity - 1 commits are accepted while the GPU has finished nothing.
	for i := 0; i < 3; i++ {
		p.CommitCurrentChunk()
	}
	if s := p.Stats(); s.ChunkOngoing != 3 {
		t.Fatalf("ChunkOngoing = %d, want 3", s.ChunkOngoing)
	}
	first := d.next(t)
	d.next(t)
	d.next(t)

	returned := make(chan struct{})
	go func() {
		p.CommitCurrentChunk()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("commit returned while the ring was full")
	case <-time.After(100 * time.Millisecond):
	}
	if s := p.Stats(); s.CPUCoherent != 0 {
		t.Fatalf("CPUCoherent = %d before any completion", s.CPUCoherent)
	}

	first.complete(nil)

	select {
	case <-returned:
	case <-time.After(testTimeout):
		t.Fatal("commit still blocked after chunk 1 finished")
	}
	waitCoherent(t, p, 1)
	if s := p.Stats(); s.ChunkOngoing > 3 {
		t.Errorf("ChunkOngoing = %d after unblock, want <= 3", s.ChunkOngoing)
	}

	stats, ok := p.Statistics(0)
	if !ok {
		t.Fatal("no statistics for frame 0")
	}
	if stats.CommandBufferCount != 4 {
		t.Errorf("CommandBufferCount = %d, want 4", stats.CommandBufferCount)
	}
	if stats.CommitInterval < 100*time.Millisecond {
		t.Errorf("CommitInterval = %v, want at least the blocked time", stats.CommitInterval)
	}

	// Drain so Close does not wait on GPU work.
	d.next(t)
	d.mu.Lock()
	rest := append([]*mockBuffer(nil), d.buffers[1:]...)
	d.mu.Unlock()
	for _, b := range rest {
		b.complete(nil)
	}
	waitCoherent(t, p, 4)
}

func TestFastCompletionDoesNotStallProducer(t *testing.T) {
	const commits = 2000

	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(2), WithHeapSize(16))

	produce(t, p, func() {
		for i := 0; i < commits; i++ {
			p.CommitCurrentChunk()
			if s := p.Stats(); s.ChunkOngoing > 1 {
				t.Errorf("commit %d: ChunkOngoing = %d with capacity 2", i+1, s.ChunkOngoing)
				return
			}
		}
	})
	waitCoherent(t, p, commits)
	if s := p.Stats(); s.ChunkOngoing != 0 {
		t.Errorf("ChunkOngoing = %d after every chunk finished, want 0", s.ChunkOngoing)
	}
}

func TestCommitCountedBeforeBackPressure(t *testing.T) {
	d := newMockDriver(false)
	p := newTestPipeline(t, d, WithRingCapacity(2), WithHeapSize(16))

	p.CommitCurrentChunk()
	first := d.next(t)

	returned := make(chan struct{})
	go func() {
		p.CommitCurrentChunk()
		close(returned)
	}()
	// The second buffer only exists once the producer published chunk 2,
	// which it does before blocking on the full ring.
	second := d.next(t)

	select {
	case <-returned:
		t.Fatal("commit returned while the ring was full")
	default:
	}
	stats, ok := p.Statistics(0)
	if !ok {
		t.Fatal("no statistics for frame 0")
	}
	if stats.CommandBufferCount != 2 {
		t.Errorf("CommandBufferCount = %d while blocked, want 2", stats.CommandBufferCount)
	}

	first.complete(nil)
	select {
	case <-returned:
	case <-time.After(testTimeout):
		t.Fatal("commit still blocked after chunk 1 finished")
	}
	second.complete(nil)
	waitCoherent(t, p, 2)
}

func TestDeviceErrorDoesNotStall(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	d := newMockDriver(true)
	d.failures[2] = errors.New("page fault")
	d.logs[3] = []string{"shader validation warning"}

	var (
		mu     sync.Mutex
		errs   []*DeviceError
		frames []uint64
	)
	p, err := New(d,
		WithRingCapacity(4),
		WithHeapSize(16),
		WithLogger(logger),
		WithElevatedPriority(false),
		WithErrorHandler(func(e *DeviceError) {
			mu.Lock()
			errs = append(errs, e)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	produce(t, p, func() {
		for i := 0; i < 5; i++ {
			frames = append(frames, p.Frame())
			p.CommitCurrentChunk()
			p.AdvanceFrame()
		}
	})
	waitCoherent(t, p, 5)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("error handler called %d times, want 1", len(errs))
	}
	if errs[0].ChunkID != 2 || errs[0].Frame != frames[1] {
		t.Errorf("DeviceError = %+v, want chunk 2 frame %d", errs[0], frames[1])
	}
	if !strings.Contains(errs[0].Error(), "page fault") {
		t.Errorf("DeviceError.Error() = %q", errs[0].Error())
	}

	out := logBuf.String()
	if !strings.Contains(out, "device error") || !strings.Contains(out, "page fault") {
		t.Errorf("device error not logged: %s", out)
	}
	if !strings.Contains(out, "shader validation warning") {
		t.Errorf("command buffer log not reported: %s", out)
	}
}

func TestFinishReleasesCommandBuffer(t *testing.T) {
	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(2), WithHeapSize(16))

	chunk := p.CurrentChunk()
	produce(t, p, p.CommitCurrentChunk)
	waitCoherent(t, p, 1)

	d.mu.Lock()
	b := d.buffers[0]
	d.mu.Unlock()
	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if !released {
		t.Error("finish worker did not release the command buffer")
	}
	if chunk.CommandBuffer() != nil {
		t.Error("chunk still references its command buffer after finish")
	}
}

func TestFrameLatencyFence(t *testing.T) {
	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(4), WithHeapSize(16))

	p.CurrentChunk().SignalFrameLatency(7)
	produce(t, p, func() {
		p.CommitCurrentChunk()
		p.CommitCurrentChunk()
	})

	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := p.FrameLatencyFence().Wait(ctx, 7); err != nil {
		t.Fatalf("frame latency fence: %v", err)
	}
	waitCoherent(t, p, 2)
	if got := p.FrameLatencyFence().Value(); got != 7 {
		t.Errorf("FrameLatencyFence().Value() = %d, want 7", got)
	}
}

func TestChunkHeapExhausted(t *testing.T) {
	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(2), WithHeapSize(32))

	chunk := p.CurrentChunk()
	if _, _, err := chunk.Alloc(64, 1); !errors.Is(err, ErrHeapExhausted) {
		t.Fatalf("Alloc beyond heap: got %v, want ErrHeapExhausted", err)
	}
	if _, _, err := chunk.Alloc(32, 1); err != nil {
		t.Fatalf("Alloc within heap: %v", err)
	}
	produce(t, p, p.CommitCurrentChunk)
	waitCoherent(t, p, 1)
	if used := chunk.Heap().Used(); used != 0 {
		t.Errorf("heap not reset after finish: %d bytes used", used)
	}
}

func TestCloseUnblocksIdleWorkers(t *testing.T) {
	d := newMockDriver(true)
	p, err := New(d, WithRingCapacity(4), WithHeapSize(16), WithElevatedPriority(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	produce(t, p, p.CommitCurrentChunk)
	waitCoherent(t, p, 1)

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(testTimeout):
		t.Fatal("Close did not return while both workers were waiting")
	}

	// Idempotent, and later commits are dropped.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	p.CommitCurrentChunk()
	if got := p.LastCommitted(); got != 1 {
		t.Errorf("commit after Close was accepted: LastCommitted() = %d", got)
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := p.CPUCoherent().Wait(ctx, 2); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait after Close = %v, want ErrClosed", err)
	}
	if err := p.CPUCoherent().Wait(ctx, 1); err != nil {
		t.Errorf("Wait for a finished chunk after Close = %v, want nil", err)
	}
}

func TestCloseReleasesHeaps(t *testing.T) {
	d := newMockDriver(false)
	p, err := New(d, WithRingCapacity(4), WithHeapSize(16), WithElevatedPriority(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunk := p.CurrentChunk()
	p.CommitCurrentChunk()
	d.next(t).complete(nil)
	waitCoherent(t, p, 1)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s := p.Stats(); s.CPUCoherent != 1 {
		t.Errorf("CPUCoherent = %d after Close, want 1", s.CPUCoherent)
	}
	if c := chunk.Heap().Cap(); c != 0 {
		t.Errorf("chunk heap still holds %d bytes after Close", c)
	}
}

func TestCloseReleasesUnfinishedCommandBuffers(t *testing.T) {
	d := newMockDriver(false)
	p, err := New(d, WithRingCapacity(4), WithHeapSize(16), WithElevatedPriority(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.CommitCurrentChunk()
	p.CommitCurrentChunk()
	first := d.next(t)
	second := d.next(t)

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	// The finish worker is parked on chunk 1. Let it go only once the
	// pipeline is stopping, so chunk 2 is never finished.
	deadline := time.Now().Add(testTimeout)
	for !p.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Close never marked the pipeline stopped")
		}
		time.Sleep(time.Millisecond)
	}
	first.complete(nil)

	select {
	case <-closed:
	case <-time.After(testTimeout):
		t.Fatal("Close did not return")
	}
	if s := p.Stats(); s.CPUCoherent != 1 {
		t.Fatalf("CPUCoherent = %d, want 1", s.CPUCoherent)
	}
	for i, b := range []*mockBuffer{first, second} {
		b.mu.Lock()
		released := b.released
		b.mu.Unlock()
		if !released {
			t.Errorf("command buffer %d not released by Close", i+1)
		}
	}
}

func TestChunkReleaseFreesCommandBuffer(t *testing.T) {
	r := newChunkRing(2, 16)
	b := &mockBuffer{done: make(chan struct{})}
	r.chunks[0].cmdbuf = b

	r.chunks[0].release()
	r.chunks[1].release()

	if !b.released {
		t.Error("release did not release the pending command buffer")
	}
	if r.chunks[0].CommandBuffer() != nil {
		t.Error("chunk still references its command buffer after release")
	}
}

type countingRecorder struct {
	mu      sync.Mutex
	commits map[uint64]int
}

func (r *countingRecorder) RecordCommit(frame uint64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits[frame]++
}

func TestStatisticsPerFrame(t *testing.T) {
	rec := &countingRecorder{commits: make(map[uint64]int)}
	d := newMockDriver(true)
	p := newTestPipeline(t, d, WithRingCapacity(8), WithHeapSize(16), WithStatistics(rec))

	produce(t, p, func() {
		for frame := 0; frame < 3; frame++ {
			for i := 0; i <= frame; i++ {
				p.CommitCurrentChunk()
			}
			p.AdvanceFrame()
		}
	})
	waitCoherent(t, p, 6)

	for frame := uint64(0); frame < 3; frame++ {
		stats, ok := p.Statistics(frame)
		if !ok {
			t.Fatalf("no statistics for frame %d", frame)
		}
		if stats.CommandBufferCount != frame+1 {
			t.Errorf("frame %d: CommandBufferCount = %d, want %d", frame, stats.CommandBufferCount, frame+1)
		}
		rec.mu.Lock()
		got := rec.commits[frame]
		rec.mu.Unlock()
		if got != int(frame+1) {
			t.Errorf("frame %d: external recorder saw %d commits, want %d", frame, got, frame+1)
		}
	}
	if _, ok := p.Statistics(99); ok {
		t.Error("statistics reported for a frame without commits")
	}
}
