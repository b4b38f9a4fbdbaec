// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !linux

package osthread

func setName(string) error { return ErrUnsupported }

func raisePriority() error { return ErrUnsupported }
