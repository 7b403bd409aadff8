package checkpoint

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrBadHeader          = errors.New("malformed safetensors header")
	ErrUnsupportedDType   = errors.New("unsupported dtype")
	ErrMissingTensor      = errors.New("missing tensor")
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrUnsupportedVersion = errors.New("unsupported checkpoint format")
)

// ValidationError describes a structural problem with the tensor layout.
type ValidationError struct {
	Type    string // e.g. "offset_overlap", "out_of_bounds"
	Tensor  string
	Tensor2 string
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap lets errors.Is match ErrBadHeader for any layout problem.
func (e *ValidationError) Unwrap() error {
	return ErrBadHeader
}
