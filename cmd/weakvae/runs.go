package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/weakvae/internal/runstore"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "runs",
		Aliases: []string{"ls"},
		Short:   "List training runs",
		Args:    cobra.NoArgs,
		RunE:    runsHandler,
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history RUN",
		Short: "Show the recorded metrics of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  historyHandler,
	}
	cmd.Flags().Int("every", 1, "Show every n-th step")
	return cmd
}

func openStore(cmd *cobra.Command) (*runstore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runstore.Open(cfg.StorePath)
}

func runsHandler(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeLogged(store)

	runs, err := store.Runs(cmd.Context())
	if err != nil {
		return err
	}

	var rows [][]string
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			fmt.Sprint(r.Steps),
			r.Checkpoint,
		})
	}
	table := newTable(cmd.OutOrStdout(), []string{"ID", "CREATED", "STATUS", "STEPS", "CHECKPOINT"})
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func historyHandler(cmd *cobra.Command, args []string) error {
	every, _ := cmd.Flags().GetInt("every")
	if every < 1 {
		every = 1
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeLogged(store)

	steps, err := store.Steps(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var rows [][]string
	for i, s := range steps {
		if i%every != 0 && i != len(steps)-1 {
			continue
		}
		rows = append(rows, []string{
			fmt.Sprint(s.Iteration),
			fmt.Sprintf("%.4f", s.Loss),
			fmt.Sprintf("%.4f", s.Reconstruction),
			fmt.Sprintf("%.4f", s.KL),
			fmt.Sprintf("%.4f", s.ELBO),
			fmt.Sprintf("%.3f", s.Beta),
			fmt.Sprintf("%.3f", s.GradNorm),
		})
	}
	table := newTable(cmd.OutOrStdout(), []string{"ITER", "LOSS", "RECON", "KL", "ELBO", "BETA", "GRAD_NORM"})
	table.AppendBulk(rows)
	table.Render()
	return nil
}
