package cpu

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/internal/tensor"
)

// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
//
// Rows of the result are computed in parallel. The inner loop runs over
// contiguous rows of b (i-k-j order) for cache-friendly access.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	M, K, N := aShape[0], aShape[1], bShape[1]
	if bShape[0] != K {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v @ %v", aShape, bShape))
	}

	result := tensor.MustRaw(tensor.Shape{M, N}, cpu.device)
	aData, bData, out := a.Data(), b.Data(), result.Data()

	cfg := cpu.par
	if M*K*N < 1<<14 {
		cfg = parallel.Sequential()
	}

	parallel.For(M, func(i int) {
		row := out[i*N : (i+1)*N]
		for k := 0; k < K; k++ {
			aik := aData[i*K+k]
			bRow := bData[k*N : (k+1)*N]
			for j, bkj := range bRow {
				row[j] += aik * bkj
			}
		}
	}, cfg)

	return result
}
