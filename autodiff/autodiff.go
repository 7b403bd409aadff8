// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation by
// wrapping a compute backend with a gradient tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := x.Mul(x).Sum()
//	grads := autodiff.Backward(loss, backend)
package autodiff

import (
	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New wraps backend with a gradient tape.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes the gradients of the scalar t with respect to every
// tensor recorded on the tape.
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
