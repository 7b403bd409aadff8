// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
package cpu

import (
	internalcpu "github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every core.
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to n workers. n <= 1 runs
// every kernel on the calling goroutine.
func NewWithWorkers(n int) *Backend {
	if n <= 1 {
		return internalcpu.NewWithConfig(parallel.Sequential())
	}
	cfg := parallel.DefaultConfig()
	cfg.NumWorkers = n
	return internalcpu.NewWithConfig(cfg)
}
