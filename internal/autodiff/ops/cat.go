package ops

import "github.com/born-ml/weakvae/internal/tensor"

// CatOp represents concatenation along a dimension.
//
// Backward splits the gradient back into per-input slices.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{
		inputs: append([]*tensor.RawTensor(nil), inputs...),
		output: output,
		dim:    tensor.NormalizeDim(dim, len(output.Shape())),
	}
}

// Backward computes the input gradients.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	outer, size, inner := splitAround(outputGrad.Shape(), op.dim)
	src := outputGrad.Data()

	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		n := in.Shape()[op.dim]
		g := tensor.MustRaw(in.Shape(), outputGrad.Device())
		dst := g.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*n*inner:(o+1)*n*inner], src[(o*size+offset)*inner:(o*size+offset+n)*inner])
		}
		grads[i] = g
		offset += n
	}
	return grads
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the concatenation.
func (op *CatOp) Output() *tensor.RawTensor { return op.output }

// splitAround returns the element counts before, along, and after dim.
func splitAround(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

// ChunkOp represents splitting a tensor into n equal parts along a dimension.
// It is a MultiOutputOperation.
//
// Backward concatenates the output gradients along the same dimension.
type ChunkOp struct {
	input   *tensor.RawTensor
	outputs []*tensor.RawTensor
	dim     int
}

// NewChunkOp creates a new ChunkOp.
func NewChunkOp(input *tensor.RawTensor, outputs []*tensor.RawTensor, dim int) *ChunkOp {
	return &ChunkOp{
		input:   input,
		outputs: append([]*tensor.RawTensor(nil), outputs...),
		dim:     tensor.NormalizeDim(dim, len(input.Shape())),
	}
}

// BackwardMulti concatenates the gradients of every chunk.
func (op *ChunkOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Cat(outputGrads, op.dim)}
}

// Backward is only meaningful with a single chunk; the tape uses BackwardMulti.
func (op *ChunkOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.outputs))
	for i, out := range op.outputs {
		if i == 0 {
			grads[i] = outputGrad
			continue
		}
		grads[i] = tensor.MustRaw(out.Shape(), backend.Device())
	}
	return op.BackwardMulti(grads, backend)
}

// Inputs returns [x].
func (op *ChunkOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the first chunk.
func (op *ChunkOp) Output() *tensor.RawTensor { return op.outputs[0] }

// Outputs returns all chunks.
func (op *ChunkOp) Outputs() []*tensor.RawTensor { return op.outputs }
