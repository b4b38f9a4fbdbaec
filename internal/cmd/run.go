// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/backend"
	"github.com/gogpu/cmdqueue/backend/native"
	"github.com/gogpu/cmdqueue/backend/sim"
	"github.com/gogpu/cmdqueue/capture"
	"github.com/gogpu/cmdqueue/internal/bench"
	"github.com/gogpu/cmdqueue/reclaim"
)

var (
	runFrames         int
	runChunksPerFrame int
	runHeapBytes      int
	runStagingBytes   uint64
	runWork           time.Duration
	runLatency        time.Duration
	runCaptureFrame   uint64
	runTimeout        time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload",
	Long: `Run commits frames of chunks through a pipeline and prints a report.

Each chunk writes --heap bytes into its chunk heap and allocates --staging
bytes from the staging allocator. On the sim driver every chunk also keeps
the simulated GPU busy for --latency plus --work.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("driver", "", "driver name (default: best available)")
	runCmd.Flags().Int("ring", cmdqueue.DefaultRingCapacity, "chunk ring capacity")
	runCmd.Flags().String("capture-dir", "", "directory for capture traces")
	runCmd.Flags().String("trigger-file", "", "capture the next frame whenever this file is touched")
	bindFlags(runCmd.Flags(), map[string]string{
		"driver":       "driver.name",
		"ring":         "pipeline.ring_capacity",
		"capture-dir":  "capture.dir",
		"trigger-file": "capture.trigger_file",
	})

	runCmd.Flags().IntVar(&runFrames, "frames", 60, "frames to produce")
	runCmd.Flags().IntVar(&runChunksPerFrame, "chunks", 8, "chunks committed per frame")
	runCmd.Flags().IntVar(&runHeapBytes, "heap", 4096, "bytes written to the chunk heap per chunk")
	runCmd.Flags().Uint64Var(&runStagingBytes, "staging", 4096, "staging bytes allocated per chunk")
	runCmd.Flags().DurationVar(&runWork, "work", 200*time.Microsecond, "simulated GPU work per chunk")
	runCmd.Flags().DurationVar(&runLatency, "latency", 100*time.Microsecond, "simulated GPU latency per command buffer")
	runCmd.Flags().Uint64Var(&runCaptureFrame, "capture", 0, "frame to capture (0 disables)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", time.Minute, "abort the run after this long")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	drv, err := openDriver(cfg.Driver.Name)
	if err != nil {
		return err
	}
	defer drv.Close()
	if s, ok := drv.(*sim.Driver); ok {
		s.SetLatency(runLatency)
	}

	var set *reclaim.Set
	if n, ok := drv.(*native.Driver); ok {
		set = n.NewReclaimSet(cfg.ReclaimConfig())
	} else {
		set = reclaim.NewSet(reclaim.HostSource{}, cfg.ReclaimConfig())
	}
	defer set.Close()

	service := capture.NewService()
	var runner *bench.Runner
	opts := append(cfg.Options(),
		set.Option(),
		cmdqueue.WithCaptureService(service),
		cmdqueue.WithErrorHandler(func(e *cmdqueue.DeviceError) { runner.ErrorHandler()(e) }),
	)
	p, err := cmdqueue.New(drv, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	runner = bench.NewRunner(p, drv.Name(), set)

	if cfg.Capture.TriggerFile != "" {
		trigger, err := capture.NewTrigger(cfg.Capture.TriggerFile, p)
		if err != nil {
			return fmt.Errorf("capture trigger: %w", err)
		}
		trigger.Start()
		defer trigger.Stop()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	report, err := runner.Run(ctx, bench.Workload{
		Frames:         runFrames,
		ChunksPerFrame: runChunksPerFrame,
		HeapBytes:      runHeapBytes,
		StagingBytes:   runStagingBytes,
		CaptureFrame:   runCaptureFrame,
		Work:           runWork,
	})
	if err != nil {
		return err
	}

	report.Print(cmd.OutOrStdout())
	for _, s := range service.Sessions() {
		fmt.Fprintf(cmd.OutOrStdout(), "capture:       frame %d, %v, %s\n", s.Frame, s.Duration().Round(time.Microsecond), s.OutputPath)
	}
	return nil
}

// openDriver opens the named driver, or the best available one.
func openDriver(name string) (backend.Driver, error) {
	if name == "" {
		return backend.InitDefault()
	}
	return backend.Open(name)
}
