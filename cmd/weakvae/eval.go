package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/born-ml/weakvae/internal/data"
	"github.com/born-ml/weakvae/internal/train"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval CHECKPOINT",
		Short: "Report loss and per-dimension KL of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  evalHandler,
	}
	cmd.Flags().Int("batches", 4, "Number of evaluation batches")
	cmd.Flags().Int("batch-size", 16, "Observations per batch")
	cmd.Flags().Int64("seed", 1000, "Seed for the evaluation data")
	cmd.Flags().Float64("threshold", train.DefaultActiveThreshold, "Mean KL above which a dimension is active")
	return cmd
}

func evalHandler(cmd *cobra.Command, args []string) error {
	batches, _ := cmd.Flags().GetInt("batches")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	seed, _ := cmd.Flags().GetInt64("seed")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	m, c, err := loadModel(args[0], 0, seed)
	if err != nil {
		return err
	}
	renderer, err := data.NewRenderer(c.Config.ImageSize, c.Config.Channels)
	if err != nil {
		return err
	}

	r, err := train.Evaluate(cmd.Context(), m, data.NewPairSampler(renderer, seed), batches, batchSize, threshold)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s, iteration %d, %d samples\n", c.RunID, c.Iteration, r.Samples)
	fmt.Fprintf(w, "loss %.4f (sd %.4f across batches), reconstruction %.4f, kl %.4f\n\n", r.Loss, r.LossStdDev, r.Reconstruction, r.KL)

	table := newTable(w, []string{"DIM", "KL", "ACTIVE"})
	for d, kl := range r.KLPerDim {
		active := ""
		if slices.Contains(r.ActiveDims, d) {
			active = "yes"
		}
		table.Append([]string{fmt.Sprint(d), fmt.Sprintf("%.4f", kl), active})
	}
	table.Render()
	return nil
}
