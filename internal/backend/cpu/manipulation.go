package cpu

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/tensor"
)

// Cat concatenates tensors along dim. All other dimensions must match.
//
// Example: Cat([[2, 3], [4, 3]], 0) -> [6, 3].
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	first := tensors[0].Shape()
	dim = tensor.NormalizeDim(dim, len(first))

	outShape := first.Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) {
			panic(fmt.Sprintf("cat: rank mismatch %v vs %v", first, s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v at dimension %d", first, s, i))
			}
		}
		outShape[dim] += s[dim]
	}

	result := tensor.MustRaw(outShape, cpu.device)
	dst := result.Data()
	outer, total, inner := splitAround(outShape, dim)

	offset := 0
	for _, t := range tensors {
		size := t.Shape()[dim]
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[(o*total+offset)*inner:(o*total+offset+size)*inner], src[o*size*inner:(o+1)*size*inner])
		}
		offset += size
	}
	return result
}

// Chunk splits x into n equal parts along dim.
// The dimension size must be divisible by n.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if n <= 0 || shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: dimension %d of size %d not divisible into %d chunks", dim, shape[dim], n))
	}

	outer, total, inner := splitAround(shape, dim)
	size := total / n
	chunkShape := shape.Clone()
	chunkShape[dim] = size

	src := x.Data()
	chunks := make([]*tensor.RawTensor, n)
	for c := 0; c < n; c++ {
		chunk := tensor.MustRaw(chunkShape, cpu.device)
		dst := chunk.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*size*inner:(o+1)*size*inner], src[(o*total+c*size)*inner:(o*total+(c+1)*size)*inner])
		}
		chunks[c] = chunk
	}
	return chunks
}
