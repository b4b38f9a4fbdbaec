// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/cmdqueue"
)

// fakeClock advances one second per call.
func fakeClock() func() time.Time {
	t := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type mockRecorder struct {
	begins, ends int
	beginErr     error
}

func (r *mockRecorder) Begin(*Session) error {
	r.begins++
	return r.beginErr
}

func (r *mockRecorder) End(*Session) error {
	r.ends++
	return nil
}

func TestServiceTraceSession(t *testing.T) {
	rec := &mockRecorder{}
	svc := NewService(WithClock(fakeClock()), WithRecorder(rec))
	out := filepath.Join(t.TempDir(), "traces", "app-capture-01-02-03_04-05-06.gputrace")

	err := svc.StartCapture(cmdqueue.CaptureConfig{
		Device:      "test-device",
		Destination: cmdqueue.CaptureToTraceDocument,
		OutputPath:  out,
		Frame:       42,
	})
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	active, ok := svc.Active()
	if !ok {
		t.Fatal("no active session after StartCapture")
	}
	if _, err := uuid.Parse(active.ID); err != nil {
		t.Errorf("session id %q is not a UUID: %v", active.ID, err)
	}

	if err := svc.StartCapture(cmdqueue.CaptureConfig{OutputPath: out}); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("second StartCapture = %v, want ErrAlreadyCapturing", err)
	}

	if err := svc.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if _, ok := svc.Active(); ok {
		t.Error("session still active after StopCapture")
	}

	got, err := ReadManifest(out)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.ID != active.ID || got.Frame != 42 || got.Device != "test-device" {
		t.Errorf("manifest = %+v", got)
	}
	if got.Destination != "trace-document" {
		t.Errorf("manifest destination = %q", got.Destination)
	}
	if got.Duration() != time.Second {
		t.Errorf("session duration = %v, want 1s", got.Duration())
	}

	sessions := svc.Sessions()
	if len(sessions) != 1 || sessions[0].ID != active.ID {
		t.Errorf("Sessions() = %+v", sessions)
	}
	if rec.begins != 1 || rec.ends != 1 {
		t.Errorf("recorder begins=%d ends=%d, want 1/1", rec.begins, rec.ends)
	}
}

func TestServiceDeveloperToolsSession(t *testing.T) {
	svc := NewService()
	err := svc.StartCapture(cmdqueue.CaptureConfig{
		Device:      "test-device",
		Destination: cmdqueue.CaptureToDeveloperTools,
	})
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if err := svc.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if s := svc.Sessions(); len(s) != 1 || s[0].OutputPath != "" {
		t.Errorf("Sessions() = %+v", s)
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		run     func(s *Service) error
		wantErr error
	}{
		{
			name:    "stop without session",
			run:     func(s *Service) error { return s.StopCapture() },
			wantErr: ErrNotCapturing,
		},
		{
			name: "trace without path",
			run: func(s *Service) error {
				return s.StartCapture(cmdqueue.CaptureConfig{Destination: cmdqueue.CaptureToTraceDocument})
			},
			wantErr: ErrNoOutputPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(NewService()); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceRecorderFailure(t *testing.T) {
	rec := &mockRecorder{beginErr: errors.New("debugger not attached")}
	svc := NewService(WithRecorder(rec))
	err := svc.StartCapture(cmdqueue.CaptureConfig{Destination: cmdqueue.CaptureToDeveloperTools})
	if err == nil {
		t.Fatal("StartCapture succeeded although the recorder failed")
	}
	if _, ok := svc.Active(); ok {
		t.Error("session left open after a failed start")
	}
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "missing.gputrace"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadManifest() = %v, want os.ErrNotExist", err)
	}
}
