package vae

import (
	"fmt"
	"math"

	"github.com/born-ml/weakvae/internal/tensor"
)

// bernoulliEps keeps log away from zero at saturated pixels.
const bernoulliEps = 1e-7

// Reconstruction returns the per-sample log-likelihood of x under the
// decoder output yHat, summed over every pixel. Shape: [batch].
//
// logScale is only used by the Gaussian likelihood and may be nil otherwise.
func Reconstruction[B tensor.Backend](dist Distribution, yHat, logScale, x *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	if !yHat.Shape().Equal(x.Shape()) {
		return nil, fmt.Errorf("%w: reconstruction %v vs input %v", ErrShapeMismatch, yHat.Shape(), x.Shape())
	}
	n := x.Shape()[0]

	var logp *tensor.Tensor[B]
	switch dist {
	case Bernoulli:
		// x*log(p) + (1-x)*log(1-p)
		oneMinusX := x.Neg().AddScalar(1)
		logP := yHat.AddScalar(bernoulliEps).Log()
		log1mP := yHat.Neg().AddScalar(1 + bernoulliEps).Log()
		logp = x.Mul(logP).Add(oneMinusX.Mul(log1mP))
	case Gaussian:
		if logScale == nil {
			return nil, fmt.Errorf("gaussian likelihood requires a log-scale")
		}
		// -logScale - 0.5*log(2π) - (x-yHat)² / (2*exp(2*logScale))
		variance2 := logScale.MulScalar(2).Exp().MulScalar(2)
		sq := x.Sub(yHat).Square().Div(variance2)
		logp = sq.Add(logScale).Neg().AddScalar(float32(-0.5 * math.Log(2*math.Pi)))
	default:
		return nil, fmt.Errorf("unknown distribution %q", dist)
	}

	return logp.Reshape(n, -1).SumDim(1, false), nil
}
