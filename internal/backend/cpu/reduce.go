package cpu

import "github.com/born-ml/weakvae/internal/tensor"

// Sum reduces all elements to a scalar tensor (shape []).
// Accumulates in float64 to limit rounding error on large tensors.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	var sum float64
	for _, v := range x.Data() {
		sum += float64(v)
	}
	result := tensor.MustRaw(tensor.Shape{}, cpu.device)
	result.Data()[0] = float32(sum)
	return result
}

// SumDim sums x along dim.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim(x, dim, keepDim, 1)
}

// MeanDim averages x along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	return cpu.reduceDim(x, dim, keepDim, 1/float64(shape[dim]))
}

// reduceDim sums along dim and multiplies by scale.
//
// The tensor is viewed as [outer, size, inner] where size is the reduced
// dimension.
func (cpu *CPUBackend) reduceDim(x *tensor.RawTensor, dim int, keepDim bool, scale float64) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAround(shape, dim)

	result := tensor.MustRaw(reducedShape(shape, dim, keepDim), cpu.device)
	src, dst := x.Data(), result.Data()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var sum float64
			for s := 0; s < size; s++ {
				sum += float64(src[(o*size+s)*inner+i])
			}
			dst[o*inner+i] = float32(sum * scale)
		}
	}
	return result
}

// splitAround returns the products of dimensions before dim, at dim and after dim.
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

// reducedShape drops dim, or sets it to 1 when keepDim is true.
func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	out := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			out = append(out, d)
		case keepDim:
			out = append(out, 1)
		}
	}
	return out
}
