package vae

import (
	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/tensor"
)

// StepResult holds the scalar outcome of one training step.
type StepResult struct {
	Loss           float32
	Reconstruction float32
	KL             float32
	ELBO           float32
	Beta           float64
	GradNorm       float64
}

// TrainStep runs one optimization step on a pair batch: forward pass with
// the tape recording, backward pass, clipped Adam update and beta warm-up.
// The tape is cleared on return.
func TrainStep[B autodiff.BackwardCapable](m *WeakVAE[B], x1, x2 *tensor.Tensor[B], labels []int) (StepResult, error) {
	tape := m.backend.GetTape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	m.optimizer.ZeroGrad()
	loss, err := m.ComputeLossCouple(x1, x2, labels)
	if err != nil {
		return StepResult{}, err
	}

	grads := autodiff.Backward(loss.Loss, m.backend)
	norm := m.UpdateWeights(grads)
	m.UpdateBeta()

	return StepResult{
		Loss:           loss.Loss.Item(),
		Reconstruction: loss.Reconstruction,
		KL:             loss.KL,
		ELBO:           loss.ELBO,
		Beta:           loss.Beta,
		GradNorm:       norm,
	}, nil
}

// NoGrad runs f with the tape paused, so evaluation does not grow it.
func NoGrad[B autodiff.BackwardCapable](backend B, f func() error) error {
	tape := backend.GetTape()
	was := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if was {
			tape.StartRecording()
		}
	}()
	return f()
}
