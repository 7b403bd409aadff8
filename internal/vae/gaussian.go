package vae

import (
	"math/rand"

	"github.com/born-ml/weakvae/internal/tensor"
)

// ComputeKL returns the element-wise divergence between two diagonal
// Gaussians, without the conventional factor of one half:
//
//	var1/var2 + (mean2-mean1)²/var2 - 1 + logVar2 - logVar1
func ComputeKL[B tensor.Backend](mean1, mean2, logVar1, logVar2 *tensor.Tensor[B]) *tensor.Tensor[B] {
	var1 := logVar1.Exp()
	var2 := logVar2.Exp()
	diff := mean2.Sub(mean1)
	return var1.Div(var2).
		Add(diff.Square().Div(var2)).
		AddScalar(-1).
		Add(logVar2).
		Sub(logVar1)
}

// SymmetricKL returns 0.5*ComputeKL(1, 2) + 0.5*ComputeKL(2, 1), the per-point
// distance between the posteriors of a pair.
func SymmetricKL[B tensor.Backend](mean1, mean2, logVar1, logVar2 *tensor.Tensor[B]) *tensor.Tensor[B] {
	forward := ComputeKL(mean1, mean2, logVar1, logVar2)
	backward := ComputeKL(mean2, mean1, logVar2, logVar1)
	return forward.MulScalar(0.5).Add(backward.MulScalar(0.5))
}

// AverageMoments returns the moments of the equal mixture of two Gaussians,
// matched by mean and variance in log space:
//
//	mean = 0.5*mean1 + 0.5*mean2
//	logVar = log(0.5*exp(logVar1) + 0.5*exp(logVar2))
func AverageMoments[B tensor.Backend](mean1, mean2, logVar1, logVar2 *tensor.Tensor[B]) (mean, logVar *tensor.Tensor[B]) {
	mean = mean1.MulScalar(0.5).Add(mean2.MulScalar(0.5))
	logVar = logVar1.Exp().MulScalar(0.5).Add(logVar2.Exp().MulScalar(0.5)).Log()
	return mean, logVar
}

// Reparameterize draws z = mean + exp(0.5*logVar) * eps with eps ~ N(0, I).
func Reparameterize[B tensor.Backend](mean, logVar *tensor.Tensor[B], rng *rand.Rand) *tensor.Tensor[B] {
	eps := tensor.Randn(mean.Shape(), rng, mean.Backend())
	return mean.Add(logVar.MulScalar(0.5).Exp().Mul(eps))
}

// KLPerDimension returns the divergence of N(mean, exp(logVar)) from N(0, I)
// for every sample and latent dimension: 0.5*(exp(logVar) + mean² - 1 - logVar).
func KLPerDimension[B tensor.Backend](mean, logVar *tensor.Tensor[B]) *tensor.Tensor[B] {
	return logVar.Exp().Add(mean.Square()).AddScalar(-1).Sub(logVar).MulScalar(0.5)
}

// KLDivergence returns the per-sample divergence from the standard-normal
// prior, summed over latent dimensions. Shape: [batch].
func KLDivergence[B tensor.Backend](mean, logVar *tensor.Tensor[B]) *tensor.Tensor[B] {
	return KLPerDimension(mean, logVar).SumDim(1, false)
}
