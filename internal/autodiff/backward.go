package autodiff

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/tensor"
)

// BackwardCapable is implemented by backends that record a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
	// GradBackend returns the backend used to compute gradients.
	GradBackend() tensor.Backend
}

// GetTape returns the gradient tape (implements BackwardCapable).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// GradBackend returns the wrapped backend so that gradient computation
// is never recorded (implements BackwardCapable).
func (b *AutodiffBackend[B]) GradBackend() tensor.Backend {
	return b.inner
}

// Backward computes gradients of a scalar tensor with respect to every
// tensor recorded on the backend's tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{3}, tensor.Shape{1}, backend)
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	grads[x.Raw()] // [6]
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("autodiff: backward requires a scalar output, got shape %v", t.Shape()))
	}
	seed := tensor.MustRaw(t.Shape(), backend.Device())
	seed.Fill(1)
	return backend.GetTape().Backward(t.Raw(), seed, backend.GradBackend())
}
