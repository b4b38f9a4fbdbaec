// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package capture implements GPU capture sessions for cmdqueue pipelines.
//
// Service is a cmdqueue.CaptureService. Each session gets a UUID; trace
// captures write a YAML manifest to the output path chosen by the pipeline
// when the session stops, and an optional Recorder drives a device-specific
// frame debugger.
//
// Trigger watches a file with fsnotify and asks a pipeline to capture its
// next frame every time the file appears:
//
//	svc := capture.NewService()
//	p, _ := cmdqueue.New(driver, cmdqueue.WithCaptureService(svc))
//	trig, _ := capture.NewTrigger("/tmp/app.capture", p)
//	trig.Start()
//	defer trig.Stop()
package capture
