// Package config loads the run configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/weakvae/internal/checkpoint"
	"github.com/born-ml/weakvae/internal/vae"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Train configures the training loop.
type Train struct {
	Iterations      int    `yaml:"iterations"`
	BatchSize       int    `yaml:"batch_size"`
	Seed            int64  `yaml:"seed"`
	LogEvery        int    `yaml:"log_every"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	CheckpointDir   string `yaml:"checkpoint_dir"`
	CheckpointDType string `yaml:"checkpoint_dtype"`
	EvalBatches     int    `yaml:"eval_batches"`
	NumThreads      int    `yaml:"num_threads"`
}

// Config is the full run configuration.
type Config struct {
	Model     vae.Config `yaml:"model"`
	Train     Train      `yaml:"train"`
	StorePath string     `yaml:"store_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: vae.DefaultConfig(),
		Train: Train{
			Iterations:      1000,
			BatchSize:       16,
			Seed:            1,
			LogEvery:        50,
			CheckpointEvery: 500,
			CheckpointDir:   "checkpoints",
			CheckpointDType: string(checkpoint.F32),
			EvalBatches:     4,
		},
		StorePath: "weakvae.db",
	}
}

// Load reads path on top of the defaults and applies environment
// overrides. An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Decode reads YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from WEAKVAE_* variables that are set.
func (c *Config) ApplyEnv() {
	if s := String("WEAKVAE_STORE")(); s != "" {
		c.StorePath = s
	}
	if s := String("WEAKVAE_CHECKPOINT_DIR")(); s != "" {
		c.Train.CheckpointDir = s
	}
	if s := String("WEAKVAE_AGGREGATOR")(); s != "" {
		c.Model.Aggregator = vae.Aggregator(s)
	}
	c.Train.Iterations = int(Uint("WEAKVAE_ITERATIONS", uint(c.Train.Iterations))())
	c.Train.BatchSize = int(Uint("WEAKVAE_BATCH_SIZE", uint(c.Train.BatchSize))())
	c.Train.Seed = int64(Uint("WEAKVAE_SEED", uint(c.Train.Seed))())
	c.Train.NumThreads = int(Uint("WEAKVAE_NUM_THREADS", uint(c.Train.NumThreads))())
	c.Model.Beta = Float("WEAKVAE_BETA", c.Model.Beta)()
	c.Model.WarmUpIterations = int(Uint("WEAKVAE_WARM_UP", uint(c.Model.WarmUpIterations))())
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	t := c.Train
	if t.Iterations < 0 {
		errs = append(errs, fmt.Errorf("train.iterations must be >= 0, got %d", t.Iterations))
	}
	if t.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("train.batch_size must be >= 1, got %d", t.BatchSize))
	}
	if t.LogEvery < 0 || t.CheckpointEvery < 0 || t.EvalBatches < 0 || t.NumThreads < 0 {
		errs = append(errs, errors.New("train.log_every, checkpoint_every, eval_batches and num_threads must be >= 0"))
	}
	if !checkpoint.DType(t.CheckpointDType).Valid() {
		errs = append(errs, fmt.Errorf("train.checkpoint_dtype must be F32, F16 or BF16, got %q", t.CheckpointDType))
	}
	if c.StorePath == "" {
		errs = append(errs, errors.New("store_path must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// YAML returns the configuration as a YAML document.
func (c Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return buf.String(), nil
}
