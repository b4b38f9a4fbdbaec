// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux

package osthread

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// elevatedNice is the niceness requested for time-critical threads.
// Lowering niceness below zero needs CAP_SYS_NICE; without it the call
// fails and the thread keeps its inherited priority.
const elevatedNice = -10

func setName(name string) error {
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return fmt.Errorf("osthread: thread name: %w", err)
	}
	//nolint:gosec // G103: prctl takes the name by pointer
	if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0); err != nil {
		return fmt.Errorf("osthread: set name %q: %w", name, err)
	}
	return nil
}

func raisePriority() error {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, elevatedNice); err != nil {
		return fmt.Errorf("osthread: set priority of thread %d: %w", tid, err)
	}
	return nil
}
