// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package vae_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/autodiff"
	"github.com/born-ml/weakvae/backend/cpu"
	"github.com/born-ml/weakvae/tensor"
	"github.com/born-ml/weakvae/vae"
)

func smallConfig() vae.Config {
	cfg := vae.DefaultConfig()
	cfg.LatentDim = 4
	cfg.HiddenDim = 8
	cfg.NFilters = 2
	cfg.ImageSize = 32
	cfg.Aggregator = vae.AggregatorLabels
	return cfg
}

func images[B tensor.Backend](t *testing.T, n int, rng *rand.Rand, b B) *tensor.Tensor[B] {
	t.Helper()
	data := make([]float32, n*32*32)
	for i := range data {
		data[i] = rng.Float32()
	}
	x, err := tensor.FromSlice(data, tensor.Shape{n, 1, 32, 32}, b)
	require.NoError(t, err)
	return x
}

func TestPublicTrainStep(t *testing.T) {
	backend := autodiff.New(cpu.NewWithWorkers(1))
	m, err := vae.New(smallConfig(), backend, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	x1, x2 := images(t, 2, rng, backend), images(t, 2, rng, backend)

	res, err := vae.TrainStep(m, x1, x2, []int{0, 3})
	require.NoError(t, err)
	assert.InDelta(t, -(res.Reconstruction - float32(res.Beta)*res.KL), res.Loss, 1e-3)
	assert.Equal(t, 1, m.Schedule().Iteration())

	_, err = vae.TrainStep(m, x1, x2, []int{0, 4})
	assert.ErrorIs(t, err, vae.ErrInvalidLabel)
}

func TestPublicNoGrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := vae.New(smallConfig(), backend, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	backend.Tape().StartRecording()
	defer backend.Tape().StopRecording()
	err = vae.NoGrad(backend, func() error {
		_, err := m.SamplePrior(2)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestPublicConfigValidation(t *testing.T) {
	cfg := smallConfig()
	cfg.Aggregator = "mean"
	_, err := vae.New(cfg, cpu.New(), rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, vae.ErrInvalidConfig)
	assert.ErrorIs(t, err, vae.ErrUnknownAggregator)
}

func TestPublicBetaSchedule(t *testing.T) {
	s := vae.NewBetaSchedule(2, 3)
	assert.Equal(t, []float64{0, 1, 2, 2}, []float64{s.At(0), s.At(1), s.At(2), s.At(3)})
}
