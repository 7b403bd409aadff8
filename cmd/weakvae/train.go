package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/born-ml/weakvae/internal/checkpoint"
	"github.com/born-ml/weakvae/internal/config"
	"github.com/born-ml/weakvae/internal/data"
	"github.com/born-ml/weakvae/internal/runstore"
	"github.com/born-ml/weakvae/internal/train"
	"github.com/born-ml/weakvae/internal/vae"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on rendered weak pairs",
		Args:  cobra.NoArgs,
		RunE:  trainHandler,
	}
	cmd.Flags().Int("iterations", 0, "Total training iterations (overrides config)")
	cmd.Flags().Int("batch-size", 0, "Pairs per batch (overrides config)")
	cmd.Flags().Int64("seed", 0, "Random seed (overrides config)")
	cmd.Flags().String("aggregator", "", "Posterior aggregator: argmax or labels")
	cmd.Flags().Float64("beta", -1, "Target KL coefficient (overrides config)")
	cmd.Flags().Int("warm-up", -1, "Beta warm-up iterations (overrides config)")
	cmd.Flags().String("checkpoint-dir", "", "Checkpoint directory (overrides config)")
	cmd.Flags().String("resume", "", "Continue training from this checkpoint")
	return cmd
}

// applyTrainFlags overrides cfg with the flags the user set.
func applyTrainFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("iterations") {
		cfg.Train.Iterations, _ = f.GetInt("iterations")
	}
	if f.Changed("batch-size") {
		cfg.Train.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("seed") {
		cfg.Train.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("aggregator") {
		s, _ := f.GetString("aggregator")
		cfg.Model.Aggregator = vae.Aggregator(s)
	}
	if f.Changed("beta") {
		cfg.Model.Beta, _ = f.GetFloat64("beta")
	}
	if f.Changed("warm-up") {
		cfg.Model.WarmUpIterations, _ = f.GetInt("warm-up")
	}
	if f.Changed("checkpoint-dir") {
		cfg.Train.CheckpointDir, _ = f.GetString("checkpoint-dir")
	}
}

func trainHandler(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetString("resume")
	var ckpt *checkpoint.Checkpoint
	if resume != "" {
		if ckpt, err = checkpoint.Load(resume); err != nil {
			return err
		}
		// Start from the checkpoint's model; environment and flags still
		// override the training knobs in the usual order.
		cfg.Model = ckpt.Config
		cfg.ApplyEnv()
	}
	applyTrainFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := runstore.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer closeLogged(store)

	doc, err := cfg.YAML()
	if err != nil {
		return err
	}
	runID := ""
	if ckpt != nil && ckpt.RunID != "" {
		if err := store.ResumeRun(ctx, ckpt.RunID, doc); err == nil {
			runID = ckpt.RunID
		} else if !errors.Is(err, runstore.ErrRunNotFound) {
			return err
		}
	}
	if runID == "" {
		if runID, err = store.CreateRun(ctx, doc); err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(cfg.Train.Seed))
	m, err := vae.New(cfg.Model, newBackend(cfg.Train.NumThreads), rng)
	if err != nil {
		return err
	}
	if ckpt != nil {
		if err := checkpoint.Restore(ckpt, m); err != nil {
			return err
		}
	}

	renderer, err := data.NewRenderer(cfg.Model.ImageSize, cfg.Model.Channels)
	if err != nil {
		return err
	}
	// Offset the data seed so resumed runs do not replay the same pairs.
	sampler := data.NewPairSampler(renderer, cfg.Train.Seed+int64(m.Schedule().Iteration()))

	trainer, err := train.New(m, sampler, train.Options{
		RunID:           runID,
		Iterations:      cfg.Train.Iterations,
		BatchSize:       cfg.Train.BatchSize,
		LogEvery:        cfg.Train.LogEvery,
		CheckpointEvery: cfg.Train.CheckpointEvery,
		CheckpointDir:   cfg.Train.CheckpointDir,
		CheckpointDType: checkpoint.DType(cfg.Train.CheckpointDType),
		Sink:            store,
		Logger:          slog.Default(),
	})
	if err != nil {
		return err
	}

	sum, runErr := trainer.Run(ctx)
	status := runstore.StatusCompleted
	if runErr != nil {
		status = runstore.StatusFailed
	}
	// The run context may already be cancelled; record the outcome anyway.
	if err := store.FinishRun(context.WithoutCancel(ctx), runID, status, sum.Checkpoint); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	table := newTable(cmd.OutOrStdout(), []string{"RUN", "ITERATIONS", "LOSS", "ELBO", "BETA", "CHECKPOINT"})
	table.Append([]string{
		runID,
		fmt.Sprint(m.Schedule().Iteration()),
		fmt.Sprintf("%.4f", sum.Last.Loss),
		fmt.Sprintf("%.4f", sum.Last.ELBO),
		fmt.Sprintf("%.3f", sum.Last.Beta),
		sum.Checkpoint,
	})
	table.Render()
	return nil
}
