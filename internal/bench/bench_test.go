// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bench

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/backend/sim"
	"github.com/gogpu/cmdqueue/reclaim"
)

func newRunner(t *testing.T, drv *sim.Driver, set *reclaim.Set) (*Runner, *cmdqueue.Pipeline) {
	t.Helper()
	var r *Runner
	opts := []cmdqueue.Option{
		cmdqueue.WithRingCapacity(4),
		cmdqueue.WithHeapSize(4096),
		cmdqueue.WithElevatedPriority(false),
		cmdqueue.WithErrorHandler(func(e *cmdqueue.DeviceError) { r.ErrorHandler()(e) }),
	}
	if set != nil {
		opts = append(opts, set.Option())
	}
	p, err := cmdqueue.New(drv, opts...)
	if err != nil {
		t.Fatalf("cmdqueue.New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	r = NewRunner(p, drv.Name(), set)
	return r, p
}

func TestWorkloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Workload
		wantErr bool
	}{
		{"valid", Workload{Frames: 1, ChunksPerFrame: 1}, false},
		{"no frames", Workload{ChunksPerFrame: 1}, true},
		{"no chunks", Workload{Frames: 1}, true},
		{"negative heap", Workload{Frames: 1, ChunksPerFrame: 1, HeapBytes: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun(t *testing.T) {
	drv := sim.New(sim.WithLatency(50 * time.Microsecond))
	if err := drv.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer drv.Close()

	set := reclaim.NewSet(reclaim.HostSource{}, reclaim.Config{PageSize: 1024})
	defer set.Close()
	r, p := newRunner(t, drv, set)

	w := Workload{
		Frames:         5,
		ChunksPerFrame: 4,
		HeapBytes:      128,
		StagingBytes:   128,
		Work:           20 * time.Microsecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := r.Run(ctx, w)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Chunks != 20 || report.Frames != 5 {
		t.Errorf("report chunks=%d frames=%d, want 20/5", report.Chunks, report.Frames)
	}
	if report.DeviceErrors != 0 || report.StagingFails != 0 {
		t.Errorf("report errors=%d staging fails=%d, want 0/0", report.DeviceErrors, report.StagingFails)
	}
	if report.Pipeline.CPUCoherent != 20 {
		t.Errorf("CPUCoherent = %d, want 20", report.Pipeline.CPUCoherent)
	}
	if len(report.Reclaim) != 3 {
		t.Errorf("Reclaim stats = %d entries, want 3", len(report.Reclaim))
	}
	if p.Frame() != 5 {
		t.Errorf("Frame() = %d, want 5", p.Frame())
	}

	var buf bytes.Buffer
	report.Print(&buf)
	for _, want := range []string{"driver:        sim", "20 in 5 frames", "device errors: 0"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRunCountsDeviceErrors(t *testing.T) {
	errFault := errors.New("lost device")
	drv := sim.New(sim.WithFaults(func(n uint64) error {
		if n%2 == 0 {
			return errFault
		}
		return nil
	}))
	if err := drv.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer drv.Close()
	r, _ := newRunner(t, drv, nil)

	report, err := r.Run(context.Background(), Workload{Frames: 2, ChunksPerFrame: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DeviceErrors != 3 {
		t.Errorf("DeviceErrors = %d, want 3", report.DeviceErrors)
	}
}

func TestRunCanceled(t *testing.T) {
	drv := sim.New()
	if err := drv.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer drv.Close()
	r, _ := newRunner(t, drv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, Workload{Frames: 1, ChunksPerFrame: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestReportChunksPerSecond(t *testing.T) {
	if got := (Report{}).ChunksPerSecond(); got != 0 {
		t.Errorf("ChunksPerSecond() of empty report = %v, want 0", got)
	}
	r := Report{Chunks: 500, Elapsed: 250 * time.Millisecond}
	if got := r.ChunksPerSecond(); got != 2000 {
		t.Errorf("ChunksPerSecond() = %v, want 2000", got)
	}
}
