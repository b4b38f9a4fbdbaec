// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import "log/slog"

// Default pipeline sizing.
const (
	// DefaultRingCapacity is the number of chunks in the ring. At most
	// DefaultRingCapacity-1 chunks are in flight at once.
	DefaultRingCapacity = 32

	// DefaultHeapSize is the CPU scratch heap size of each chunk (4 MB).
	DefaultHeapSize = 4 << 20

	// DefaultDeviceLabel names the device in capture sessions.
	DefaultDeviceLabel = "cmdqueue-device"
)

// Option configures a Pipeline during creation.
// Use functional options to customize Pipeline behavior.
//
// Example:
//
//	p, err := cmdqueue.New(driver,
//	    cmdqueue.WithRingCapacity(8),
//	    cmdqueue.WithReclaimers(staging, copyTemp, commandData),
//	)
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	capacity int
	heapSize int

	encoder ChunkEncoder

	staging     Reclaimer
	copyTemp    Reclaimer
	commandData Reclaimer

	capture      CaptureService
	captureDir   string
	captureFrame string
	deviceLabel  string

	stats        StatisticsRecorder
	logger       *slog.Logger
	elevated     bool
	errorHandler func(*DeviceError)
}

// defaultOptions returns the default pipeline options.
func defaultOptions() options {
	return options{
		capacity:    DefaultRingCapacity,
		heapSize:    DefaultHeapSize,
		encoder:     CommandListEncoder{},
		deviceLabel: DefaultDeviceLabel,
		elevated:    true,
	}
}

// WithRingCapacity sets the number of chunks in the ring. Must be >= 2.
func WithRingCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithHeapSize sets the CPU scratch heap size of every chunk in bytes.
func WithHeapSize(n int) Option {
	return func(o *options) {
		o.heapSize = n
	}
}

// WithEncoder replaces the default CommandListEncoder.
// A nil encoder keeps the default.
func WithEncoder(e ChunkEncoder) Option {
	return func(o *options) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithReclaimers sets the staging, copy-temp and command-data reclaimers.
// The finish worker calls FreeBlocks on each non-nil reclaimer after every
// completed chunk.
func WithReclaimers(staging, copyTemp, commandData Reclaimer) Option {
	return func(o *options) {
		o.staging = staging
		o.copyTemp = copyTemp
		o.commandData = commandData
	}
}

// WithCaptureService injects the GPU capture service.
func WithCaptureService(s CaptureService) Option {
	return func(o *options) {
		o.capture = s
	}
}

// WithCaptureDir sets the directory capture traces are written to.
// Defaults to the working directory.
func WithCaptureDir(dir string) Option {
	return func(o *options) {
		o.captureDir = dir
	}
}

// WithCaptureFrame schedules a one-shot capture at the frame given as a
// decimal string, typically read from the environment. Empty or malformed
// values are ignored and no capture is scheduled.
func WithCaptureFrame(raw string) Option {
	return func(o *options) {
		o.captureFrame = raw
	}
}

// WithDeviceLabel names the device in capture sessions.
func WithDeviceLabel(label string) Option {
	return func(o *options) {
		o.deviceLabel = label
	}
}

// WithStatistics adds an external statistics recorder. The pipeline keeps
// its own per-frame statistics regardless.
func WithStatistics(r StatisticsRecorder) Option {
	return func(o *options) {
		o.stats = r
	}
}

// WithLogger sets the logger for this pipeline. Defaults to Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithElevatedPriority controls whether the encode and finish workers try
// to raise their OS thread priority. Enabled by default.
func WithElevatedPriority(enabled bool) Option {
	return func(o *options) {
		o.elevated = enabled
	}
}

// WithErrorHandler installs a callback for device errors. It runs on the
// finish worker after the error is logged and must not block for long.
func WithErrorHandler(fn func(*DeviceError)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
