package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/weakvae/internal/tensor"
)

// Conv2D is a 2D convolution layer with square kernels.
//
// Input:  [batch, in_channels, H, W]
// Output: [batch, out_channels, (H + 2p - k)/s + 1, (W + 2p - k)/s + 1]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	weight      *Parameter[B] // [out_channels, in_channels, k, k]
	bias        *Parameter[B] // [out_channels]
}

// NewConv2D creates a Conv2D layer with Xavier weights and zero bias.
func NewConv2D[B tensor.Backend](
	name string,
	inChannels, outChannels, kernelSize, stride, padding int,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	w := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng, backend)
	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter(qualify(name, "weight"), w),
		bias:        NewParameter(qualify(name, "bias"), Zeros(tensor.Shape{outChannels}, backend)),
	}
}

// Forward performs the convolution and adds the per-channel bias.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", shape[1], c.inChannels))
	}

	backend := input.Backend()
	out := tensor.New(backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding), backend)
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// OutputSize returns the spatial size produced for an input of size n.
func (c *Conv2D[B]) OutputSize(n int) int {
	return (n+2*c.padding-c.kernelSize)/c.stride + 1
}

// ConvTranspose2D is a transposed 2D convolution layer with square kernels.
//
// Input:  [batch, in_channels, H, W]
// Output: [batch, out_channels, (H-1)*s - 2p + k, (W-1)*s - 2p + k]
type ConvTranspose2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	weight      *Parameter[B] // [in_channels, out_channels, k, k]
	bias        *Parameter[B] // [out_channels]
}

// NewConvTranspose2D creates a ConvTranspose2D layer with Xavier weights and zero bias.
func NewConvTranspose2D[B tensor.Backend](
	name string,
	inChannels, outChannels, kernelSize, stride, padding int,
	rng *rand.Rand,
	backend B,
) *ConvTranspose2D[B] {
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	w := Xavier(fanIn, fanOut, tensor.Shape{inChannels, outChannels, kernelSize, kernelSize}, rng, backend)
	return &ConvTranspose2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter(qualify(name, "weight"), w),
		bias:        NewParameter(qualify(name, "bias"), Zeros(tensor.Shape{outChannels}, backend)),
	}
}

// Forward performs the transposed convolution and adds the per-channel bias.
func (c *ConvTranspose2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != expected %d", shape[1], c.inChannels))
	}

	backend := input.Backend()
	out := tensor.New(backend.ConvTranspose2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding), backend)
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *ConvTranspose2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// OutputSize returns the spatial size produced for an input of size n.
func (c *ConvTranspose2D[B]) OutputSize(n int) int {
	return (n-1)*c.stride - 2*c.padding + c.kernelSize
}
