package ops

import "github.com/born-ml/weakvae/internal/tensor"

// SumOp represents the sum of all elements into a scalar.
//
// Backward broadcasts the scalar gradient to the input shape.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: input, output: output}
}

// Backward computes the input gradient.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{broadcastTo(outputGrad, op.input.Shape(), backend)}
}

// Inputs returns [x].
func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns sum(x).
func (op *SumOp) Output() *tensor.RawTensor { return op.output }

// SumDimOp represents a sum along one dimension, optionally scaled.
// MeanDim is recorded as a SumDimOp with scale 1/size.
//
// Backward restores the reduced dimension and broadcasts grad*scale over it.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
	scale   float32
}

// NewSumDimOp creates a SumDimOp for SumDim.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		input:   input,
		output:  output,
		dim:     tensor.NormalizeDim(dim, len(input.Shape())),
		keepDim: keepDim,
		scale:   1,
	}
}

// NewMeanDimOp creates a SumDimOp for MeanDim.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	op := NewSumDimOp(input, output, dim, keepDim)
	op.scale = 1 / float32(input.Shape()[op.dim])
	return op
}

// Backward computes the input gradient.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		grad = backend.Reshape(grad, keepDimShape(op.input.Shape(), op.dim))
	}
	if op.scale != 1 {
		grad = backend.MulScalar(grad, op.scale)
	}
	return []*tensor.RawTensor{broadcastTo(grad, op.input.Shape(), backend)}
}

// Inputs returns [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the reduced tensor.
func (op *SumDimOp) Output() *tensor.RawTensor { return op.output }
