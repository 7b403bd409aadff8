package cpu

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/tensor"
)

// Reshape returns a copy of t with a new shape and the same element count.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	result, err := tensor.RawFromSlice(t.Data(), newShape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Transpose permutes the dimensions of t. With no axes it reverses them.
//
// Example: [2, 3, 4] with axes (2, 0, 1) -> [4, 2, 3].
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	rank := len(shape)
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("transpose: expected %d axes, got %d", rank, len(axes)))
	}

	seen := make([]bool, rank)
	outShape := make(tensor.Shape, rank)
	for i, ax := range axes {
		if ax < 0 || ax >= rank || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid permutation %v", axes))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result := tensor.MustRaw(outShape, cpu.device)
	src, dst := t.Data(), result.Data()
	inStrides := t.Strides()

	// permStrides[i] is the input stride walked by output dimension i.
	permStrides := make([]int, rank)
	for i, ax := range axes {
		permStrides[i] = inStrides[ax]
	}

	counter := make([]int, rank)
	srcIdx := 0
	for o := range dst {
		dst[o] = src[srcIdx]
		for d := rank - 1; d >= 0; d-- {
			counter[d]++
			srcIdx += permStrides[d]
			if counter[d] < outShape[d] {
				break
			}
			srcIdx -= permStrides[d] * counter[d]
			counter[d] = 0
		}
	}

	return result
}
