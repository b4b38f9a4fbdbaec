// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package osthread tunes the OS thread backing a long-lived worker
// goroutine. Callers must hold the thread with runtime.LockOSThread
// before calling Configure.
package osthread

import "errors"

// maxNameLen is the kernel limit for thread names, excluding the NUL byte.
const maxNameLen = 15

// ErrUnsupported is returned on platforms without thread tuning support.
var ErrUnsupported = errors.New("osthread: not supported on this platform")

// Configure names the current OS thread and, when elevated is true, raises
// its scheduling priority. Both steps are best effort: the first failure is
// returned after attempting the rest.
func Configure(name string, elevated bool) error {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	err := setName(name)
	if elevated {
		if perr := raisePriority(); err == nil {
			err = perr
		}
	}
	return err
}
