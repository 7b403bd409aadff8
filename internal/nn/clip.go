package nn

import (
	"math"

	"github.com/born-ml/weakvae/internal/tensor"
)

// ClipGradNorm rescales the gradients of params so that their global L2
// norm is at most maxNorm, and returns the norm before clipping.
//
// Scaled gradients are stored as new tensors in grads, so tensors shared
// with other map entries are never modified.
func ClipGradNorm[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		g, ok := grads[p.tensor.Raw()]
		if !ok {
			continue
		}
		for _, v := range g.Data() {
			sq += float64(v) * float64(v)
		}
	}
	total := math.Sqrt(sq)

	coef := maxNorm / (total + 1e-6)
	if coef >= 1 {
		return total
	}

	for _, p := range params {
		key := p.tensor.Raw()
		g, ok := grads[key]
		if !ok {
			continue
		}
		scaled := g.Clone()
		data := scaled.Data()
		for i := range data {
			data[i] = float32(float64(data[i]) * coef)
		}
		grads[key] = scaled
	}
	return total
}
