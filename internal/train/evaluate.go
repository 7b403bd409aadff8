package train

import (
	"context"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/data"
	"github.com/born-ml/weakvae/internal/vae"
)

// DefaultActiveThreshold is the mean KL, in nats, above which a latent
// dimension counts as active.
const DefaultActiveThreshold = 0.01

// Report summarises a model on held-out single observations.
type Report struct {
	Samples int
	Loss    float64
	// LossStdDev is the spread of the batch-mean losses across batches.
	// It is 0 for a single batch.
	LossStdDev     float64
	BatchLosses    []float64
	Reconstruction float64
	KL             float64
	KLPerDim       []float64
	ActiveDims     []int
}

// Evaluate scores the model on batches freshly drawn from sampler. Only the
// first image of each pair is used. The tape is paused throughout.
func Evaluate[B autodiff.BackwardCapable](ctx context.Context, m *vae.WeakVAE[B], sampler *data.PairSampler, batches, batchSize int, threshold float64) (Report, error) {
	var (
		losses, recons, kls []float64
		weights             []float64
		perDim              = make([][]float64, m.Config().LatentDim)
	)

	err := vae.NoGrad(m.Backend(), func() error {
		for range batches {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := sampler.NextBatch(batchSize)
			if err != nil {
				return err
			}
			x, _, err := data.Tensors(batch, m.Backend())
			if err != nil {
				return err
			}

			loss, err := m.ComputeLoss(x)
			if err != nil {
				return err
			}
			losses = append(losses, float64(loss.Loss.Item()))
			recons = append(recons, float64(loss.Reconstruction))
			kls = append(kls, float64(loss.KL))
			weights = append(weights, float64(batch.Size()))

			kl := vae.KLPerDimension(loss.Mean, loss.LogVar).Data()
			d := len(perDim)
			for i, v := range kl {
				perDim[i%d] = append(perDim[i%d], float64(v))
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	r := Report{KLPerDim: make([]float64, len(perDim))}
	for _, w := range weights {
		r.Samples += int(w)
	}
	if r.Samples == 0 {
		return r, nil
	}
	r.BatchLosses = losses
	r.Loss = stat.Mean(losses, weights)
	if len(losses) > 1 {
		r.LossStdDev = stat.StdDev(losses, nil)
	}
	r.Reconstruction = stat.Mean(recons, weights)
	r.KL = stat.Mean(kls, weights)
	for d, vals := range perDim {
		r.KLPerDim[d] = stat.Mean(vals, nil)
		if r.KLPerDim[d] > threshold {
			r.ActiveDims = append(r.ActiveDims, d)
		}
	}
	return r, nil
}
