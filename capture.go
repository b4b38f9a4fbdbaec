// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdqueue

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CaptureAction is the decision taken for a chunk at encode time.
type CaptureAction int

const (
	// CaptureNothing leaves the capture session as is.
	CaptureNothing CaptureAction = iota

	// CaptureStart opens a capture session before encoding the chunk.
	CaptureStart

	// CaptureStop closes the open capture session.
	CaptureStop
)

// String returns the action name.
func (a CaptureAction) String() string {
	switch a {
	case CaptureStart:
		return "StartCapture"
	case CaptureStop:
		return "StopCapture"
	default:
		return "Nothing"
	}
}

// captureTimeLayout names capture files like
// "app-capture-14-03-59_10-19-26.gputrace".
const captureTimeLayout = "-capture-15-04-05_01-02-06.gputrace"

// CaptureOutputPath returns the trace path for a capture started at now by
// the executable named exe, inside dir.
func CaptureOutputPath(exe, dir string, now time.Time) string {
	return filepath.Join(dir, exe+now.Format(captureTimeLayout))
}

// executableBaseName returns the running binary's name without extension.
func executableBaseName() string {
	exe, err := os.Executable()
	if err != nil {
		return "cmdqueue"
	}
	base := filepath.Base(exe)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseCaptureFrame parses a capture trigger value. ok is false for empty or
// non-numeric input.
func ParseCaptureFrame(raw string) (frame uint64, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	frame, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return frame, true
}

// captureState decides per chunk whether a capture session starts or stops.
//
// States: Idle, PendingStart(target), Capturing(frame). At most one start is
// pending at a time. The encode worker calls nextAction; any goroutine may
// schedule or request.
type captureState struct {
	mu sync.Mutex

	pending bool
	target  uint64

	capturing    bool
	captureFrame uint64

	nextFrameRequested bool
	stopRequested      bool
}

// schedule arms PendingStart(frame), replacing any earlier pending start.
func (s *captureState) schedule(frame uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = true
	s.target = frame
}

// requestNextFrame asks for a capture of the frame after the next chunk's.
func (s *captureState) requestNextFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFrameRequested = true
}

// requestStop asks for the open capture session to end at the next chunk.
func (s *captureState) requestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing {
		s.stopRequested = true
	}
}

// active reports whether a capture session is open.
func (s *captureState) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// nextAction advances the state machine for a chunk of the given frame.
// A session captures exactly one frame: reaching a later frame counts as
// a stop request.
func (s *captureState) nextAction(frame uint64) CaptureAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.pending && !s.capturing && frame == s.target:
		s.pending = false
		s.capturing = true
		s.captureFrame = frame
		s.stopRequested = false
		return CaptureStart
	case s.capturing && (s.stopRequested || frame > s.captureFrame):
		s.capturing = false
		s.stopRequested = false
		return CaptureStop
	}

	if s.nextFrameRequested && !s.capturing {
		s.nextFrameRequested = false
		s.pending = true
		s.target = frame + 1
	}
	return CaptureNothing
}
