// Package optim implements optimization algorithms for training.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-4}, backend)
//
//	for step := range steps {
//	    loss := computeLoss(model, batch)
//	    grads := autodiff.Backward(loss, backend)
//	    nn.ClipGradNorm(model.Parameters(), grads, 1.0)
//	    optimizer.Step(grads)
//	    backend.Tape().Clear()
//	}
package optim

import (
	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	// grads maps a parameter's RawTensor to its gradient, as returned by
	// autodiff.Backward.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// getGradient looks up the gradient for a parameter.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if g, ok := grads[param.Tensor().Raw()]; ok {
		return g
	}
	return nil
}
