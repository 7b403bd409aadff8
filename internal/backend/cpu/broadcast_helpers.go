package cpu

import "github.com/born-ml/weakvae/internal/tensor"

// broadcastStrides returns strides for walking t as if it had outShape:
// broadcast (size-1 or missing) dimensions get stride 0.
func broadcastStrides(shape tensor.Shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	src := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for i := range outShape {
		j := i - offset
		if j < 0 || shape[j] == 1 {
			continue
		}
		strides[i] = src[j]
	}
	return strides
}

// forEachBroadcast calls f(outIdx, aIdx, bIdx) for every element of outShape,
// with aIdx and bIdx the flat offsets of the broadcast operands.
func forEachBroadcast(aShape, bShape, outShape tensor.Shape, f func(out, a, b int)) {
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	rank := len(outShape)
	counter := make([]int, rank)
	aIdx, bIdx := 0, 0

	n := outShape.NumElements()
	for out := 0; out < n; out++ {
		f(out, aIdx, bIdx)

		// Increment the multi-index from the innermost dimension.
		for d := rank - 1; d >= 0; d-- {
			counter[d]++
			aIdx += aStrides[d]
			bIdx += bStrides[d]
			if counter[d] < outShape[d] {
				break
			}
			aIdx -= aStrides[d] * counter[d]
			bIdx -= bStrides[d] * counter[d]
			counter[d] = 0
		}
	}
}
