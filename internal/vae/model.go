// Package vae implements a weakly-supervised variational autoencoder.
//
// The model is trained on pairs of observations that share all but one
// generative factor. Both posteriors are fused into a shared estimate before
// sampling, either adaptively (argmax over the per-dimension KL between the
// pair) or with the label of the changed factor.
package vae

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/optim"
	"github.com/born-ml/weakvae/internal/tensor"
)

// WeakVAE is a convolutional VAE with paired-posterior aggregation.
type WeakVAE[B tensor.Backend] struct {
	cfg      Config
	backend  B
	encoder  *Encoder[B]
	fcMu     *nn.Linear[B]
	fcVar    *nn.Linear[B]
	decoder  *Decoder[B]
	logScale *nn.Parameter[B]
	params   []*nn.Parameter[B]

	optimizer *optim.Adam[B]
	schedule  *BetaSchedule
	rng       *rand.Rand
}

// Loss is the single-observation beta-VAE objective.
type Loss[B tensor.Backend] struct {
	// Loss is the differentiable scalar -(reconstruction - beta*kl).
	Loss           *tensor.Tensor[B]
	Reconstruction float32
	KL             float32
	ELBO           float32
	// Mean and LogVar are the encoder posterior.
	Mean   *tensor.Tensor[B]
	LogVar *tensor.Tensor[B]
	// YHat is the reconstruction.
	YHat *tensor.Tensor[B]
}

// CoupleLoss is the paired objective.
type CoupleLoss[B tensor.Backend] struct {
	// Loss is the differentiable scalar -(reconstruction - beta*kl).
	Loss *tensor.Tensor[B]
	// Reconstruction is mean(0.5*r1 + 0.5*r2).
	Reconstruction float32
	// KL is mean(0.5*kl1 + 0.5*kl2) of the aggregated posteriors.
	KL float32
	// ELBO is reconstruction - kl, independent of beta.
	ELBO float32
	// Beta is the coefficient used for Loss.
	Beta float64
	// YHat1 and YHat2 are the reconstructions of the pair.
	YHat1 *tensor.Tensor[B]
	YHat2 *tensor.Tensor[B]
}

// New creates a model with parameters initialized from rng. The same rng
// drives the reparameterization noise.
func New[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) (*WeakVAE[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &WeakVAE[B]{
		cfg:      cfg,
		backend:  backend,
		encoder:  NewEncoder(cfg, rng, backend),
		fcMu:     nn.NewLinear("fc_mu", cfg.HiddenDim, cfg.LatentDim, rng, backend),
		fcVar:    nn.NewLinear("fc_var", cfg.HiddenDim, cfg.LatentDim, rng, backend),
		decoder:  NewDecoder(cfg, rng, backend),
		logScale: nn.NewParameter("log_scale", tensor.Zeros(tensor.Shape{1}, backend)),
		schedule: NewBetaSchedule(cfg.Beta, cfg.WarmUpIterations),
		rng:      rng,
	}

	m.params = append(m.params, m.encoder.Parameters()...)
	m.params = append(m.params, m.fcMu.Parameters()...)
	m.params = append(m.params, m.fcVar.Parameters()...)
	m.params = append(m.params, m.decoder.Parameters()...)
	m.params = append(m.params, m.logScale)

	m.optimizer = optim.NewAdam(m.params, optim.AdamConfig{LR: float32(cfg.LearningRate)}, backend)
	return m, nil
}

// Config returns the model configuration.
func (m *WeakVAE[B]) Config() Config { return m.cfg }

// Backend returns the compute backend.
func (m *WeakVAE[B]) Backend() B { return m.backend }

// Schedule returns the beta warm-up schedule.
func (m *WeakVAE[B]) Schedule() *BetaSchedule { return m.schedule }

// Optimizer returns the Adam optimizer.
func (m *WeakVAE[B]) Optimizer() *optim.Adam[B] { return m.optimizer }

// Beta returns the current KL coefficient.
func (m *WeakVAE[B]) Beta() float64 { return m.schedule.Beta() }

// Parameters returns every trainable parameter in a stable order.
func (m *WeakVAE[B]) Parameters() []*nn.Parameter[B] { return m.params }

func (m *WeakVAE[B]) checkImages(name string, x *tensor.Tensor[B]) error {
	want := tensor.Shape{0, m.cfg.Channels, m.cfg.ImageSize, m.cfg.ImageSize}
	shape := x.Shape()
	if len(shape) != 4 || shape[0] == 0 || !shape[1:].Equal(want[1:]) {
		return fmt.Errorf("%w: %s has shape %v, want [N %d %d %d]",
			ErrShapeMismatch, name, shape, m.cfg.Channels, m.cfg.ImageSize, m.cfg.ImageSize)
	}
	return nil
}

// Encode returns the posterior mean and log-variance, each [N, LatentDim].
func (m *WeakVAE[B]) Encode(x *tensor.Tensor[B]) (mean, logVar *tensor.Tensor[B], err error) {
	if err := m.checkImages("x", x); err != nil {
		return nil, nil, err
	}
	h := m.encoder.Forward(x)
	return m.fcMu.Forward(h), m.fcVar.Forward(h), nil
}

// Decode maps latents [N, LatentDim] to images in (0, 1).
func (m *WeakVAE[B]) Decode(z *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	shape := z.Shape()
	if len(shape) != 2 || shape[1] != m.cfg.LatentDim {
		return nil, fmt.Errorf("%w: latent has shape %v, want [N %d]", ErrShapeMismatch, shape, m.cfg.LatentDim)
	}
	return m.decoder.Forward(z), nil
}

// Sample draws z from N(mean, exp(logVar)) with the reparameterization trick.
func (m *WeakVAE[B]) Sample(mean, logVar *tensor.Tensor[B]) *tensor.Tensor[B] {
	return Reparameterize(mean, logVar, m.rng)
}

// SamplePrior decodes n latents drawn from N(0, I).
func (m *WeakVAE[B]) SamplePrior(n int) (*tensor.Tensor[B], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", ErrShapeMismatch, n)
	}
	z := tensor.Randn(tensor.Shape{n, m.cfg.LatentDim}, m.rng, m.backend)
	return m.Decode(z)
}

// ComputeLoss evaluates the single-observation objective on x.
func (m *WeakVAE[B]) ComputeLoss(x *tensor.Tensor[B]) (*Loss[B], error) {
	mean, logVar, err := m.Encode(x)
	if err != nil {
		return nil, err
	}
	yHat, err := m.Decode(m.Sample(mean, logVar))
	if err != nil {
		return nil, err
	}
	recon, err := Reconstruction(m.cfg.Distribution, yHat, m.logScale.Tensor(), x)
	if err != nil {
		return nil, err
	}

	reconMean := recon.Mean()
	klMean := KLDivergence(mean, logVar).Mean()
	loss := reconMean.Sub(klMean.MulScalar(float32(m.Beta()))).Neg()

	r, k := reconMean.Item(), klMean.Item()
	return &Loss[B]{
		Loss:           loss,
		Reconstruction: r,
		KL:             k,
		ELBO:           r - k,
		Mean:           mean,
		LogVar:         logVar,
		YHat:           yHat,
	}, nil
}

// ComputeLossCouple evaluates the paired objective.
//
// labels[i] is the latent dimension that x1[i] and x2[i] do not share. It is
// only consulted by the labels aggregator but is always validated.
func (m *WeakVAE[B]) ComputeLossCouple(x1, x2 *tensor.Tensor[B], labels []int) (*CoupleLoss[B], error) {
	if err := m.checkImages("x1", x1); err != nil {
		return nil, err
	}
	if !x1.Shape().Equal(x2.Shape()) {
		return nil, fmt.Errorf("%w: x1 %v vs x2 %v", ErrShapeMismatch, x1.Shape(), x2.Shape())
	}
	n := x1.Shape()[0]
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d labels for batch of %d", ErrShapeMismatch, len(labels), n)
	}
	for i, l := range labels {
		if l < 0 || l >= m.cfg.LatentDim {
			return nil, fmt.Errorf("%w: labels[%d] = %d, want [0, %d)", ErrInvalidLabel, i, l, m.cfg.LatentDim)
		}
	}

	mean12, logVar12, err := m.Encode(tensor.Cat([]*tensor.Tensor[B]{x1, x2}, 0))
	if err != nil {
		return nil, err
	}
	means := mean12.Chunk(2, 0)
	logVars := logVar12.Chunk(2, 0)
	mu1, mu2 := means[0], means[1]
	lv1, lv2 := logVars[0], logVars[1]

	oneHot := tensor.OneHot(labels, m.cfg.LatentDim, m.backend)
	klPerPoint := SymmetricKL(mu1, mu2, lv1, lv2)
	newMean, newLogVar := AverageMoments(mu1, mu2, lv1, lv2)

	sMu1, sLv1, err := Aggregate(m.cfg.Aggregator, mu1, lv1, newMean, newLogVar, oneHot, klPerPoint)
	if err != nil {
		return nil, err
	}
	sMu2, sLv2, err := Aggregate(m.cfg.Aggregator, mu2, lv2, newMean, newLogVar, oneHot, klPerPoint)
	if err != nil {
		return nil, err
	}

	z1 := m.Sample(sMu1, sLv1)
	z2 := m.Sample(sMu2, sLv2)
	yHat12, err := m.Decode(tensor.Cat([]*tensor.Tensor[B]{z1, z2}, 0))
	if err != nil {
		return nil, err
	}
	yHats := yHat12.Chunk(2, 0)

	r1, err := Reconstruction(m.cfg.Distribution, yHats[0], m.logScale.Tensor(), x1)
	if err != nil {
		return nil, err
	}
	r2, err := Reconstruction(m.cfg.Distribution, yHats[1], m.logScale.Tensor(), x2)
	if err != nil {
		return nil, err
	}
	recon := r1.MulScalar(0.5).Add(r2.MulScalar(0.5)).Mean()

	kl1 := KLDivergence(sMu1, sLv1)
	kl2 := KLDivergence(sMu2, sLv2)
	kl := kl1.MulScalar(0.5).Add(kl2.MulScalar(0.5)).Mean()

	beta := m.Beta()
	loss := recon.Sub(kl.MulScalar(float32(beta))).Neg()

	rv, kv := recon.Item(), kl.Item()
	return &CoupleLoss[B]{
		Loss:           loss,
		Reconstruction: rv,
		KL:             kv,
		ELBO:           rv - kv,
		Beta:           beta,
		YHat1:          yHats[0],
		YHat2:          yHats[1],
	}, nil
}

// UpdateWeights clips the global gradient norm to ClipGrad, applies one
// optimizer step, and returns the norm before clipping.
func (m *WeakVAE[B]) UpdateWeights(grads map[*tensor.RawTensor]*tensor.RawTensor) float64 {
	norm := nn.ClipGradNorm(m.params, grads, m.cfg.ClipGrad)
	nn.CollectGrads(m.params, grads)
	m.optimizer.Step(grads)
	return norm
}

// UpdateBeta advances the warm-up schedule by one iteration.
func (m *WeakVAE[B]) UpdateBeta() {
	m.schedule.Step()
}
