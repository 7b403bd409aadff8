// Package nn implements the neural network modules used by the VAE.
//
// This package provides:
//   - Module interface and Parameter with gradient storage
//   - Linear, Conv2D and ConvTranspose2D layers
//   - LeakyReLU and Tanh activations
//   - Sequential container
//   - ClipGradNorm for global gradient-norm clipping
package nn

import "github.com/born-ml/weakvae/internal/tensor"

// Module is the base interface for all neural network components.
//
// Modules compose into larger architectures:
//
//	stack := nn.NewSequential[B](
//	    nn.NewConv2D("conv1", 3, 32, 4, 2, 1, rng, backend),
//	    nn.NewLeakyReLU[B](0.01),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter[B]
}

// Parameter is a named trainable tensor.
//
// The optimizer updates the tensor's data in place, so its RawTensor
// identity is stable across steps and can key a gradient map.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[B]
	grad   *tensor.Tensor[B]
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the fully qualified parameter name, e.g. "encoder.conv1.weight".
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[B] {
	return p.tensor
}

// Grad returns the gradient, or nil before a backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// CollectGrads stores the gradient of each parameter from a gradient map
// produced by autodiff.Backward. Parameters absent from the map keep a nil grad.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range params {
		if g, ok := grads[p.tensor.Raw()]; ok {
			p.grad = tensor.New(g, p.tensor.Backend())
		} else {
			p.grad = nil
		}
	}
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
