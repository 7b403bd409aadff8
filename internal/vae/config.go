package vae

import (
	"errors"
	"fmt"
)

// Aggregator selects how two posteriors are fused into a shared estimate.
type Aggregator string

const (
	// AggregatorArgmax keeps the dimensions whose symmetric KL falls in the
	// upper of two equal-width bins and averages the rest.
	AggregatorArgmax Aggregator = "argmax"

	// AggregatorLabels keeps the dimension named by the label and averages the rest.
	AggregatorLabels Aggregator = "labels"
)

// Distribution selects the decoder likelihood.
type Distribution string

const (
	// Bernoulli treats pixels as Bernoulli probabilities.
	Bernoulli Distribution = "bernoulli"

	// Gaussian uses a Gaussian with a single learned log-scale.
	Gaussian Distribution = "gaussian"
)

// Config holds the model hyperparameters.
type Config struct {
	LatentDim        int          `yaml:"latent_dim"`
	HiddenDim        int          `yaml:"hidden_dim"`
	NFilters         int          `yaml:"n_filters"`
	ImageSize        int          `yaml:"image_size"`
	Channels         int          `yaml:"channels"`
	Beta             float64      `yaml:"beta"`
	WarmUpIterations int          `yaml:"warm_up_iterations"`
	Aggregator       Aggregator   `yaml:"aggregator"`
	Distribution     Distribution `yaml:"distribution"`
	ClipGrad         float64      `yaml:"clip_grad"`
	LearningRate     float64      `yaml:"learning_rate"`
}

// DefaultConfig returns the configuration used for 64x64 single-channel images.
func DefaultConfig() Config {
	return Config{
		LatentDim:        10,
		HiddenDim:        256,
		NFilters:         32,
		ImageSize:        64,
		Channels:         1,
		Beta:             1,
		WarmUpIterations: 0,
		Aggregator:       AggregatorArgmax,
		Distribution:     Bernoulli,
		ClipGrad:         1.0,
		LearningRate:     1e-4,
	}
}

// Validate reports every invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("latent_dim", c.LatentDim)
	positive("hidden_dim", c.HiddenDim)
	positive("n_filters", c.NFilters)
	positive("channels", c.Channels)

	switch c.ImageSize {
	case 32, 64, 128:
	default:
		errs = append(errs, fmt.Errorf("image_size must be 32, 64 or 128, got %d", c.ImageSize))
	}
	if c.Beta < 0 {
		errs = append(errs, fmt.Errorf("beta must be non-negative, got %g", c.Beta))
	}
	switch c.Aggregator {
	case AggregatorArgmax, AggregatorLabels:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownAggregator, c.Aggregator))
	}
	switch c.Distribution {
	case Bernoulli, Gaussian:
	default:
		errs = append(errs, fmt.Errorf("distribution must be bernoulli or gaussian, got %q", c.Distribution))
	}
	if c.ClipGrad <= 0 {
		errs = append(errs, fmt.Errorf("clip_grad must be positive, got %g", c.ClipGrad))
	}
	if c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// featureSize is the spatial size after the four stride-2 encoder convolutions.
func (c Config) featureSize() int {
	return c.ImageSize / 16
}
