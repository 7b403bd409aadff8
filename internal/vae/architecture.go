package vae

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/tensor"
)

// leakySlope matches the default negative slope of a leaky ReLU.
const leakySlope = 0.01

// Encoder maps images [N, C, S, S] to hidden features [N, HiddenDim].
//
// Four Conv2D(4, 2, 1) layers with leaky ReLU halve the spatial size each
// time (channels C → f → f → 2f → 2f), then a Linear maps the flattened
// features to the hidden size.
type Encoder[B tensor.Backend] struct {
	convs  *nn.Sequential[B]
	linear *nn.Linear[B]
	flat   int
}

// NewEncoder builds the encoder for cfg.
func NewEncoder[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) *Encoder[B] {
	f := cfg.NFilters
	channels := []int{cfg.Channels, f, f, 2 * f, 2 * f}

	layers := make([]nn.Module[B], 0, 8)
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("encoder.conv%d", i+1)
		layers = append(layers,
			nn.NewConv2D(name, channels[i], channels[i+1], 4, 2, 1, rng, backend),
			nn.NewLeakyReLU[B](leakySlope),
		)
	}

	s := cfg.featureSize()
	flat := 2 * f * s * s
	return &Encoder[B]{
		convs:  nn.NewSequential(layers...),
		linear: nn.NewLinear("encoder.linear", flat, cfg.HiddenDim, rng, backend),
		flat:   flat,
	}
}

// Forward encodes a batch of images.
func (e *Encoder[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	h := e.convs.Forward(x)
	return e.linear.Forward(h.Reshape(h.Shape()[0], e.flat))
}

// Parameters returns the encoder parameters.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	return append(e.convs.Parameters(), e.linear.Parameters()...)
}

// Decoder maps latents [N, LatentDim] to images [N, C, S, S] in (0, 1).
//
// A Linear expands the latent to [N, 2f, S/16, S/16]; three
// ConvTranspose2D(4, 2, 1) layers with leaky ReLU (2f → 2f → f → f) and a
// final ConvTranspose2D to C channels double the spatial size each time.
// The output is (tanh(y) + 1) / 2.
type Decoder[B tensor.Backend] struct {
	linear  *nn.Linear[B]
	deconvs *nn.Sequential[B]
	out     *nn.ConvTranspose2D[B]
	tanh    *nn.Tanh[B]
	filters int
	size    int
}

// NewDecoder builds the decoder for cfg.
func NewDecoder[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) *Decoder[B] {
	f := cfg.NFilters
	s := cfg.featureSize()
	channels := []int{2 * f, 2 * f, f, f}

	layers := make([]nn.Module[B], 0, 6)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("decoder.deconv%d", i+2)
		layers = append(layers,
			nn.NewConvTranspose2D(name, channels[i], channels[i+1], 4, 2, 1, rng, backend),
			nn.NewLeakyReLU[B](leakySlope),
		)
	}

	return &Decoder[B]{
		linear:  nn.NewLinear("decoder.linear", cfg.LatentDim, 2*f*s*s, rng, backend),
		deconvs: nn.NewSequential(layers...),
		out:     nn.NewConvTranspose2D("decoder.deconv5", f, cfg.Channels, 4, 2, 1, rng, backend),
		tanh:    nn.NewTanh[B](),
		filters: 2 * f,
		size:    s,
	}
}

// Forward decodes a batch of latents.
func (d *Decoder[B]) Forward(z *tensor.Tensor[B]) *tensor.Tensor[B] {
	h := d.linear.Forward(z).Reshape(z.Shape()[0], d.filters, d.size, d.size)
	h = d.deconvs.Forward(h)
	y := d.tanh.Forward(d.out.Forward(h))
	return y.AddScalar(1).MulScalar(0.5)
}

// Parameters returns the decoder parameters.
func (d *Decoder[B]) Parameters() []*nn.Parameter[B] {
	params := d.linear.Parameters()
	params = append(params, d.deconvs.Parameters()...)
	return append(params, d.out.Parameters()...)
}
