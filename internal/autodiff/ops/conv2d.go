package ops

import "github.com/born-ml/weakvae/internal/tensor"

// Conv2DOp represents a 2D convolution.
//
// Forward:
//
//	output[n, co, oh, ow] = Σ input[n, ci, oh*s+kh-p, ow*s+kw-p] * kernel[co, ci, kh, kw]
//
// Backward delegates to the backend's Conv2DInputBackward and
// Conv2DKernelBackward kernels.
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Backward computes gradients for input and kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding),
		backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding),
	}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input, op.kernel} }

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.RawTensor { return op.output }

// ConvTranspose2DOp represents a transposed 2D convolution with a
// [C_in, C_out, K_h, K_w] kernel.
//
// A transposed convolution is the input-gradient of a convolution whose
// "input" is our output, so:
//
//	grad_input  = Conv2D(grad, kernel)
//	grad_kernel = Conv2DKernelBackward(grad, kernel, input)
type ConvTranspose2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConvTranspose2DOp creates a new ConvTranspose2DOp.
func NewConvTranspose2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *ConvTranspose2DOp {
	return &ConvTranspose2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Backward computes gradients for input and kernel.
func (op *ConvTranspose2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		backend.Conv2D(outputGrad, op.kernel, op.stride, op.padding),
		backend.Conv2DKernelBackward(outputGrad, op.kernel, op.input, op.stride, op.padding),
	}
}

// Inputs returns [input, kernel].
func (op *ConvTranspose2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the transposed convolution result.
func (op *ConvTranspose2DOp) Output() *tensor.RawTensor { return op.output }
