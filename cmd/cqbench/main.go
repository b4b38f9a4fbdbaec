// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command cqbench drives synthetic workloads through a cmdqueue pipeline.
//
// Usage:
//
//	cqbench run --driver sim --frames 120 --chunks 16 --capture 30
//	cqbench drivers
package main

import (
	"os"

	"github.com/gogpu/cmdqueue/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
