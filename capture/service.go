// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/cmdqueue"
)

// Service errors.
var (
	// ErrAlreadyCapturing is returned when starting while a session is open.
	ErrAlreadyCapturing = errors.New("capture: session already open")

	// ErrNotCapturing is returned when stopping without an open session.
	ErrNotCapturing = errors.New("capture: no open session")

	// ErrNoOutputPath is returned for trace captures without a path.
	ErrNoOutputPath = errors.New("capture: trace capture needs an output path")
)

// Session describes one capture session. Trace captures write it as a YAML
// document to the session's output path when they stop.
type Session struct {
	ID          string    `yaml:"id"`
	Device      string    `yaml:"device"`
	Destination string    `yaml:"destination"`
	OutputPath  string    `yaml:"output_path,omitempty"`
	Frame       uint64    `yaml:"frame"`
	StartedAt   time.Time `yaml:"started_at"`
	StoppedAt   time.Time `yaml:"stopped_at,omitempty"`
}

// Duration returns how long the session was open, or 0 while it is open.
func (s Session) Duration() time.Duration {
	if s.StoppedAt.IsZero() {
		return 0
	}
	return s.StoppedAt.Sub(s.StartedAt)
}

// Recorder is a device-specific capture tool driven by the Service, for
// example a frame debugger's in-process API.
type Recorder interface {
	Begin(s *Session) error
	End(s *Session) error
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder attaches a device-specific capture tool.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service implements cmdqueue.CaptureService. It keeps the history of
// sessions and writes a manifest for every trace capture.
//
// Service is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	current  *Session
	history  []Session
	recorder Recorder
	now      func() time.Time
}

var _ cmdqueue.CaptureService = (*Service)(nil)

// NewService creates a capture service.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCapture opens a session described by cfg.
func (s *Service) StartCapture(cfg cmdqueue.CaptureConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyCapturing, s.current.ID)
	}
	if cfg.Destination == cmdqueue.CaptureToTraceDocument {
		if cfg.OutputPath == "" {
			return ErrNoOutputPath
		}
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return fmt.Errorf("capture: create trace directory: %w", err)
		}
	}

	session := &Session{
		ID:          uuid.NewString(),
		Device:      cfg.Device,
		Destination: destinationName(cfg.Destination),
		OutputPath:  cfg.OutputPath,
		Frame:       cfg.Frame,
		StartedAt:   s.now(),
	}
	if s.recorder != nil {
		if err := s.recorder.Begin(session); err != nil {
			return fmt.Errorf("capture: begin session: %w", err)
		}
	}
	s.current = session

	cmdqueue.Logger().Info("capture: session started",
		"id", session.ID,
		"frame", session.Frame,
		"path", session.OutputPath)
	return nil
}

// StopCapture closes the open session.
func (s *Service) StopCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.current
	if session == nil {
		return ErrNotCapturing
	}
	s.current = nil
	session.StoppedAt = s.now()
	s.history = append(s.history, *session)

	var errs []error
	if s.recorder != nil {
		if err := s.recorder.End(session); err != nil {
			errs = append(errs, fmt.Errorf("capture: end session: %w", err))
		}
	}
	if session.Destination == destinationName(cmdqueue.CaptureToTraceDocument) {
		if err := writeManifest(session); err != nil {
			errs = append(errs, err)
		}
	}

	cmdqueue.Logger().Info("capture: session stopped",
		"id", session.ID,
		"duration", session.Duration())
	return errors.Join(errs...)
}

// Active returns the open session, if any.
func (s *Service) Active() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Sessions returns the closed sessions, oldest first.
func (s *Service) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Session(nil), s.history...)
}

// ReadManifest loads a session written by a trace capture.
func ReadManifest(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("capture: read manifest: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("capture: parse manifest %s: %w", path, err)
	}
	return s, nil
}

func writeManifest(s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("capture: encode manifest: %w", err)
	}
	if err := os.WriteFile(s.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("capture: write manifest: %w", err)
	}
	return nil
}

func destinationName(d cmdqueue.CaptureDestination) string {
	switch d {
	case cmdqueue.CaptureToTraceDocument:
		return "trace-document"
	case cmdqueue.CaptureToDeveloperTools:
		return "developer-tools"
	default:
		return "unknown"
	}
}
