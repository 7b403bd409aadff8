// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation records its inputs and output during the forward pass and
// computes input gradients during the backward pass:
//   - AddOp, SubOp, MulOp, DivOp: broadcasting element-wise arithmetic
//   - MatMulOp, TransposeOp, ReshapeOp: linear algebra and layout
//   - ExpOp, LogOp, TanhOp, LeakyReLUOp, ScalarOp: element-wise functions
//   - SumOp, SumDimOp, MeanDimOp: reductions
//   - CatOp, ChunkOp: concatenation and splitting
//   - WhereOp: masked selection
//   - Conv2DOp, ConvTranspose2DOp: convolutions
package ops

import "github.com/born-ml/weakvae/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns one gradient per input, in Inputs() order. A nil entry means
	// no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// MultiOutputOperation represents an operation that produces multiple outputs,
// such as Chunk.
//
// The tape collects gradients for ALL outputs, filling unused outputs with
// zeros, before calling BackwardMulti.
type MultiOutputOperation interface {
	Operation

	// Outputs returns all output tensors produced by this operation.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes gradients for inputs given gradients for all outputs.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
