package nn

import "github.com/born-ml/weakvae/internal/tensor"

// LeakyReLU applies f(x) = x for x > 0 and slope*x otherwise.
type LeakyReLU[B tensor.Backend] struct {
	slope float32
}

// NewLeakyReLU creates a LeakyReLU activation. PyTorch's default slope is 0.01.
func NewLeakyReLU[B tensor.Backend](slope float32) *LeakyReLU[B] {
	return &LeakyReLU[B]{slope: slope}
}

// Forward applies the activation.
func (r *LeakyReLU[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return input.LeakyReLU(r.slope)
}

// Parameters returns nil.
func (r *LeakyReLU[B]) Parameters() []*Parameter[B] { return nil }

// Tanh applies the hyperbolic tangent.
type Tanh[B tensor.Backend] struct{}

// NewTanh creates a Tanh activation.
func NewTanh[B tensor.Backend]() *Tanh[B] {
	return &Tanh[B]{}
}

// Forward applies the activation.
func (t *Tanh[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return input.Tanh()
}

// Parameters returns nil.
func (t *Tanh[B]) Parameters() []*Parameter[B] { return nil }
