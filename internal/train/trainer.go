// Package train runs the weak-pair training loop and evaluates models.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/checkpoint"
	"github.com/born-ml/weakvae/internal/data"
	"github.com/born-ml/weakvae/internal/runstore"
	"github.com/born-ml/weakvae/internal/vae"
)

// ErrDiverged is returned when the loss stops being finite.
var ErrDiverged = errors.New("training diverged")

// MetricsSink receives the metrics of every step.
type MetricsSink interface {
	RecordStep(ctx context.Context, runID string, step runstore.Step) error
}

// Options configures a Trainer.
type Options struct {
	RunID           string
	Iterations      int // total, including iterations already done by a resumed model
	BatchSize       int
	LogEvery        int // 0 disables periodic logging
	CheckpointEvery int // 0 checkpoints only at the end
	CheckpointDir   string
	CheckpointDType checkpoint.DType
	Sink            MetricsSink
	Logger          *slog.Logger
}

// Summary describes a finished Run.
type Summary struct {
	Iterations int
	Last       vae.StepResult
	Checkpoint string
}

// Trainer drives a model over weak pairs drawn from a sampler.
type Trainer[B autodiff.BackwardCapable] struct {
	model   *vae.WeakVAE[B]
	sampler *data.PairSampler
	opts    Options
	log     *slog.Logger
}

// New creates a Trainer. Pair labels index latent dimensions, so the model
// needs at least one latent per generative factor.
func New[B autodiff.BackwardCapable](m *vae.WeakVAE[B], sampler *data.PairSampler, opts Options) (*Trainer[B], error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Iterations < 0 {
		return nil, fmt.Errorf("iterations must be non-negative, got %d", opts.Iterations)
	}
	if ld := m.Config().LatentDim; ld < data.NumFactors {
		return nil, fmt.Errorf("%w: latent_dim %d is smaller than the %d data factors",
			vae.ErrInvalidConfig, ld, data.NumFactors)
	}
	if opts.CheckpointDType == "" {
		opts.CheckpointDType = checkpoint.F32
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Trainer[B]{model: m, sampler: sampler, opts: opts, log: log.With("run", opts.RunID)}, nil
}

// Run trains until the model has completed opts.Iterations steps. A
// cancelled context stops the loop between steps; progress so far is
// checkpointed before returning the context error.
func (t *Trainer[B]) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := t.model.Schedule().Iteration()
	t.log.Info("training", "from", start, "to", t.opts.Iterations, "batch", t.opts.BatchSize,
		"aggregator", t.model.Config().Aggregator, "beta", t.model.Config().Beta)

	for it := start; it < t.opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			path, cerr := t.checkpoint(it)
			sum.Checkpoint = path
			return sum, errors.Join(err, cerr)
		}

		res, err := t.step(ctx, it)
		if err != nil {
			return sum, fmt.Errorf("iteration %d: %w", it, err)
		}
		sum.Iterations++
		sum.Last = res

		if t.opts.LogEvery > 0 && (it+1)%t.opts.LogEvery == 0 {
			t.log.Info("step", "iteration", it+1, "loss", res.Loss, "recon", res.Reconstruction,
				"kl", res.KL, "elbo", res.ELBO, "beta", res.Beta, "grad_norm", res.GradNorm)
		}
		if t.opts.CheckpointEvery > 0 && (it+1)%t.opts.CheckpointEvery == 0 && it+1 < t.opts.Iterations {
			if _, err := t.checkpoint(it + 1); err != nil {
				return sum, err
			}
		}
	}

	path, err := t.checkpoint(t.model.Schedule().Iteration())
	if err != nil {
		return sum, err
	}
	sum.Checkpoint = path
	t.log.Info("training done", "iterations", sum.Iterations, "checkpoint", path)
	return sum, nil
}

func (t *Trainer[B]) step(ctx context.Context, it int) (vae.StepResult, error) {
	batch, err := t.sampler.NextBatch(t.opts.BatchSize)
	if err != nil {
		return vae.StepResult{}, err
	}
	x1, x2, err := data.Tensors(batch, t.model.Backend())
	if err != nil {
		return vae.StepResult{}, err
	}

	res, err := vae.TrainStep(t.model, x1, x2, batch.Labels)
	if err != nil {
		return res, err
	}
	if l := float64(res.Loss); math.IsNaN(l) || math.IsInf(l, 0) {
		return res, fmt.Errorf("%w: loss %v", ErrDiverged, res.Loss)
	}

	if t.opts.Sink != nil {
		err := t.opts.Sink.RecordStep(ctx, t.opts.RunID, runstore.Step{
			Iteration:      it,
			Loss:           float64(res.Loss),
			Reconstruction: float64(res.Reconstruction),
			KL:             float64(res.KL),
			ELBO:           float64(res.ELBO),
			Beta:           res.Beta,
			GradNorm:       res.GradNorm,
		})
		if err != nil {
			return res, fmt.Errorf("record metrics: %w", err)
		}
	}
	t.log.Debug("step", "iteration", it, "loss", res.Loss, "beta", res.Beta)
	return res, nil
}

// checkpoint writes the current state, named after the completed iteration
// count. It is a no-op without a checkpoint directory.
func (t *Trainer[B]) checkpoint(iteration int) (string, error) {
	if t.opts.CheckpointDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(t.opts.CheckpointDir, 0o755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	name := fmt.Sprintf("%s-%06d.safetensors", t.opts.RunID, iteration)
	if t.opts.RunID == "" {
		name = fmt.Sprintf("weakvae-%06d.safetensors", iteration)
	}
	path := filepath.Join(t.opts.CheckpointDir, name)
	if err := checkpoint.Save(path, checkpoint.Capture(t.opts.RunID, t.model), t.opts.CheckpointDType); err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	t.log.Debug("checkpoint", "path", path, "iteration", iteration)
	return path, nil
}
