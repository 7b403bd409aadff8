package vae

import "errors"

// Sentinel errors returned by the model. Wrapped errors carry detail and
// can be tested with errors.Is.
var (
	// ErrInvalidConfig indicates a Config that failed validation.
	ErrInvalidConfig = errors.New("invalid model config")

	// ErrShapeMismatch indicates inputs whose shapes do not fit the model.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidLabel indicates a label outside [0, LatentDim).
	ErrInvalidLabel = errors.New("invalid label")

	// ErrUnknownAggregator indicates an aggregator other than argmax or labels.
	ErrUnknownAggregator = errors.New("unknown aggregator")

	// ErrMissingParameter indicates a state dict without a required parameter.
	ErrMissingParameter = errors.New("missing parameter")
)
