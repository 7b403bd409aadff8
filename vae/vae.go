// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vae is the public API of the weakly-supervised variational
// autoencoder.
//
// A WeakVAE learns from pairs of observations that share all but one
// generative factor. Both images are encoded, the two posteriors are fused
// with an Aggregator, and the fused latents are decoded back into both
// images. The KL term is weighted by a beta that warms up linearly.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model, err := vae.New(vae.DefaultConfig(), backend, rand.New(rand.NewSource(1)))
//	if err != nil {
//	    return err
//	}
//	res, err := vae.TrainStep(model, x1, x2, labels)
package vae

import (
	"math/rand"

	"github.com/born-ml/weakvae/autodiff"
	"github.com/born-ml/weakvae/internal/vae"
	"github.com/born-ml/weakvae/tensor"
)

// Config holds the model hyperparameters.
type Config = vae.Config

// Aggregator selects how the two posteriors of a pair are fused.
type Aggregator = vae.Aggregator

// Distribution selects the decoder likelihood.
type Distribution = vae.Distribution

// Aggregators and likelihoods.
const (
	AggregatorArgmax Aggregator   = vae.AggregatorArgmax
	AggregatorLabels Aggregator   = vae.AggregatorLabels
	Bernoulli        Distribution = vae.Bernoulli
	Gaussian         Distribution = vae.Gaussian
)

// Errors returned by the model.
var (
	ErrInvalidConfig     = vae.ErrInvalidConfig
	ErrShapeMismatch     = vae.ErrShapeMismatch
	ErrInvalidLabel      = vae.ErrInvalidLabel
	ErrUnknownAggregator = vae.ErrUnknownAggregator
	ErrMissingParameter  = vae.ErrMissingParameter
)

// WeakVAE is the model.
type WeakVAE[B tensor.Backend] = vae.WeakVAE[B]

// Loss is the single-observation objective.
type Loss[B tensor.Backend] = vae.Loss[B]

// CoupleLoss is the paired objective.
type CoupleLoss[B tensor.Backend] = vae.CoupleLoss[B]

// StepResult is the scalar outcome of one training step.
type StepResult = vae.StepResult

// BetaSchedule is the linear warm-up of the KL weight.
type BetaSchedule = vae.BetaSchedule

// DefaultConfig returns the configuration for 64x64 single-channel images.
func DefaultConfig() Config {
	return vae.DefaultConfig()
}

// New builds a model with freshly initialized weights drawn from rng.
func New[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) (*WeakVAE[B], error) {
	return vae.New(cfg, backend, rng)
}

// TrainStep runs one optimization step on a batch of pairs. labels[i] is
// the latent dimension not shared by x1[i] and x2[i].
func TrainStep[B autodiff.BackwardCapable](m *WeakVAE[B], x1, x2 *tensor.Tensor[B], labels []int) (StepResult, error) {
	return vae.TrainStep(m, x1, x2, labels)
}

// NoGrad runs f without recording operations on the tape.
func NoGrad[B autodiff.BackwardCapable](backend B, f func() error) error {
	return vae.NoGrad(backend, f)
}

// SymmetricKL returns the per-dimension symmetric KL divergence between
// two diagonal Gaussians.
func SymmetricKL[B tensor.Backend](mean1, mean2, logVar1, logVar2 *tensor.Tensor[B]) *tensor.Tensor[B] {
	return vae.SymmetricKL(mean1, mean2, logVar1, logVar2)
}

// NewBetaSchedule creates a warm-up schedule reaching target after warmUp
// iterations.
func NewBetaSchedule(target float64, warmUp int) *BetaSchedule {
	return vae.NewBetaSchedule(target, warmUp)
}
