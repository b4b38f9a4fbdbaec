// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine,
// including the encode and finish workers.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for cmdqueue and all its sub-packages.
// By default, cmdqueue produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by cmdqueue:
//   - [slog.LevelDebug]: worker lifecycle, thread tuning results, reclaim watermarks
//   - [slog.LevelInfo]: pipeline start and shutdown
//   - [slog.LevelWarn]: capture sessions, capture service failures, commits after Close
//   - [slog.LevelError]: device errors and command buffer diagnostics
//
// Example:
//
//	cmdqueue.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by cmdqueue.
// Sub-packages (backend/native, reclaim, capture) call this to share the
// same logger configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// pipelineLogger tags every record of one pipeline with its device label and
// ring capacity, so several pipelines can share one handler.
func pipelineLogger(l *slog.Logger, device string, capacity int) *slog.Logger {
	if !l.Handler().Enabled(context.Background(), slog.LevelError) {
		return l
	}
	return l.With(slog.Group("pipeline", slog.String("device", device), slog.Int("ring", capacity)))
}
