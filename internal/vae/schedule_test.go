package vae

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetaScheduleWarmUp(t *testing.T) {
	s := NewBetaSchedule(1, 5)
	assert.Equal(t, 0.0, s.Beta())

	var got []float64
	for range 7 {
		s.Step()
		got = append(got, s.Beta())
	}
	assert.InDeltaSlice(t, []float64{0.25, 0.5, 0.75, 1, 1, 1, 1}, got, 1e-12)
	assert.Equal(t, 7, s.Iteration())
}

func TestBetaScheduleNoWarmUp(t *testing.T) {
	for _, warm := range []int{0, -3} {
		s := NewBetaSchedule(4, warm)
		assert.Equal(t, 4.0, s.Beta())
		s.Step()
		assert.Equal(t, 4.0, s.Beta())
	}
}

func TestBetaScheduleSingleWarmUpIteration(t *testing.T) {
	s := NewBetaSchedule(2, 1)
	assert.Equal(t, 0.0, s.Beta())
	s.Step()
	assert.Equal(t, 2.0, s.Beta())
}

func TestBetaScheduleResume(t *testing.T) {
	s := NewBetaSchedule(1, 11)
	s.SetIteration(5)
	assert.InDelta(t, 0.5, s.Beta(), 1e-12)
	assert.Equal(t, 5, s.Iteration())
	assert.Equal(t, 11, s.WarmUp())
	assert.Equal(t, 1.0, s.Target())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ImageSize = 48
	cfg.LatentDim = 0
	cfg.Aggregator = "mean"
	cfg.ClipGrad = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, ErrUnknownAggregator))
	assert.Contains(t, err.Error(), "image_size")
	assert.Contains(t, err.Error(), "latent_dim")
	assert.Contains(t, err.Error(), "clip_grad")
}
