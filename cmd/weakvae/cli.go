package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/checkpoint"
	"github.com/born-ml/weakvae/internal/config"
	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/internal/vae"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

type backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// appendEnvDocs lists the environment variables a command honours in its
// usage text.
func appendEnvDocs(cmd *cobra.Command, envs []config.EnvVar) {
	if len(envs) == 0 {
		return
	}
	usage := "\nEnvironment Variables:\n"
	for _, e := range envs {
		usage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "weakvae",
		Short:         "Weakly-supervised disentangling VAE",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr()))
		},
	}
	root.PersistentFlags().String("config", config.Var("WEAKVAE_CONFIG"), "Path to a YAML config file")
	root.PersistentFlags().String("store", "", "Path to the run database (overrides config)")

	envVars := config.AsMap()
	trainCmd := newTrainCmd()
	appendEnvDocs(trainCmd, []config.EnvVar{
		envVars["WEAKVAE_DEBUG"],
		envVars["WEAKVAE_CONFIG"],
		envVars["WEAKVAE_STORE"],
		envVars["WEAKVAE_CHECKPOINT_DIR"],
		envVars["WEAKVAE_ITERATIONS"],
		envVars["WEAKVAE_BATCH_SIZE"],
		envVars["WEAKVAE_SEED"],
		envVars["WEAKVAE_BETA"],
		envVars["WEAKVAE_WARM_UP"],
		envVars["WEAKVAE_AGGREGATOR"],
		envVars["WEAKVAE_NUM_THREADS"],
	})

	root.AddCommand(
		trainCmd,
		newEvalCmd(),
		newSampleCmd(),
		newRunsCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newLogger(w io.Writer) *slog.Logger {
	level := config.LogLevel()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
}

// loadConfig reads --config, applies the environment and --store.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.StorePath = store
	}
	return cfg, nil
}

func newBackend(threads int) backend {
	pc := parallel.DefaultConfig()
	if threads == 1 {
		pc = parallel.Sequential()
	} else if threads > 1 {
		pc.NumWorkers = threads
	}
	return autodiff.New(cpu.NewWithConfig(pc))
}

// loadModel rebuilds the model stored in a checkpoint.
func loadModel(path string, threads int, seed int64) (*vae.WeakVAE[backend], *checkpoint.Checkpoint, error) {
	c, err := checkpoint.Load(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := vae.New(c.Config, newBackend(threads), rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, nil, err
	}
	if err := checkpoint.Restore(c, m); err != nil {
		return nil, nil, err
	}
	return m, c, nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "weakvae version %s (checkpoint format %s)\n", version, checkpoint.FormatVersion)
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			doc, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), doc)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}
			return nil
		},
	}
}

func closeLogged(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "error", err)
	}
}
