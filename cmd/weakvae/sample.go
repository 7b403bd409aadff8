package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/weakvae/internal/data"
	"github.com/born-ml/weakvae/internal/tensor"
	"github.com/born-ml/weakvae/internal/vae"
)

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample CHECKPOINT",
		Short: "Write a PNG grid of generated or reconstructed images",
		Args:  cobra.ExactArgs(1),
		RunE:  sampleHandler,
	}
	cmd.Flags().IntP("num", "n", 16, "Number of images")
	cmd.Flags().Int("cols", 8, "Grid columns")
	cmd.Flags().Int("scale", 2, "Pixel upscaling factor")
	cmd.Flags().Int64("seed", 1, "Random seed")
	cmd.Flags().Bool("reconstruct", false, "Show rendered pairs and their reconstructions instead of prior samples")
	cmd.Flags().StringP("output", "o", "samples.png", "Output PNG path")
	return cmd
}

func sampleHandler(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("num")
	cols, _ := cmd.Flags().GetInt("cols")
	scale, _ := cmd.Flags().GetInt("scale")
	seed, _ := cmd.Flags().GetInt64("seed")
	reconstruct, _ := cmd.Flags().GetBool("reconstruct")
	out, _ := cmd.Flags().GetString("output")

	m, c, err := loadModel(args[0], 0, seed)
	if err != nil {
		return err
	}
	cfg := c.Config

	var pixels []float32
	count := n
	err = vae.NoGrad(m.Backend(), func() error {
		if !reconstruct {
			y, err := m.SamplePrior(n)
			if err != nil {
				return err
			}
			pixels = y.Data()
			return nil
		}

		renderer, err := data.NewRenderer(cfg.ImageSize, cfg.Channels)
		if err != nil {
			return err
		}
		batch, err := data.NewPairSampler(renderer, seed).NextBatch(n)
		if err != nil {
			return err
		}
		x1, x2, err := data.Tensors(batch, m.Backend())
		if err != nil {
			return err
		}
		loss, err := m.ComputeLossCouple(x1, x2, batch.Labels)
		if err != nil {
			return err
		}
		// Rows: x1, reconstruction of x1, x2, reconstruction of x2.
		rows := tensor.Cat([]*tensor.Tensor[backend]{x1, loss.YHat1, x2, loss.YHat2}, 0)
		pixels = rows.Data()
		count = 4 * n
		cols = n
		return nil
	})
	if err != nil {
		return err
	}

	img, err := data.Grid(pixels, count, cfg.Channels, cfg.ImageSize, cols, scale)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d images to %s\n", count, out)
	return nil
}
