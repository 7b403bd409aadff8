package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/vae"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  latent_dim: 6
  aggregator: labels
train:
  iterations: 20
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Model.LatentDim)
	assert.Equal(t, vae.AggregatorLabels, cfg.Model.Aggregator)
	assert.Equal(t, 20, cfg.Train.Iterations)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().Model.NFilters, cfg.Model.NFilters)
	assert.Equal(t, Default().Train.BatchSize, cfg.Train.BatchSize)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  latent_dims: 6\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeEmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEAKVAE_ITERATIONS", "7")
	t.Setenv("WEAKVAE_BETA", "'4.5'")
	t.Setenv("WEAKVAE_AGGREGATOR", "labels")
	t.Setenv("WEAKVAE_STORE", "/tmp/x.db")
	t.Setenv("WEAKVAE_BATCH_SIZE", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Train.Iterations)
	assert.Equal(t, 4.5, cfg.Model.Beta)
	assert.Equal(t, vae.AggregatorLabels, cfg.Model.Aggregator)
	assert.Equal(t, "/tmp/x.db", cfg.StorePath)
	// Invalid values fall back to the current setting.
	assert.Equal(t, Default().Train.BatchSize, cfg.Train.BatchSize)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Train.BatchSize = 0
	cfg.Train.CheckpointDType = "F64"
	cfg.StorePath = ""
	cfg.Model.LatentDim = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, vae.ErrInvalidConfig)
	for _, field := range []string{"batch_size", "checkpoint_dtype", "store_path"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Model.Aggregator = vae.AggregatorLabels
	cfg.Train.Seed = 42

	doc, err := cfg.YAML()
	require.NoError(t, err)

	got := Config{}
	require.NoError(t, Decode(strings.NewReader(doc), &got))
	assert.Equal(t, cfg, got)
}

func TestLogLevel(t *testing.T) {
	for value, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	} {
		t.Setenv("WEAKVAE_DEBUG", value)
		assert.Equal(t, want, LogLevel(), "WEAKVAE_DEBUG=%q", value)
	}
}

func TestAsMap(t *testing.T) {
	t.Setenv("WEAKVAE_STORE", "runs.db")
	assert.Equal(t, "runs.db", Values()["WEAKVAE_STORE"])
	assert.Contains(t, AsMap(), "WEAKVAE_DEBUG")
}
