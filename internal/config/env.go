package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a getter for a string variable.
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// Uint returns a getter for an unsigned variable. Invalid values log a
// warning and fall back to defaultValue.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float returns a getter for a float variable.
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

// LogLevel returns the log level from WEAKVAE_DEBUG.
// 0/false is INFO (default), 1/true is DEBUG, 2 is TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("WEAKVAE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// EnvVar describes one recognised environment variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every recognised variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"WEAKVAE_DEBUG":          {"WEAKVAE_DEBUG", LogLevel(), "Show additional debug information (e.g. WEAKVAE_DEBUG=1)"},
		"WEAKVAE_CONFIG":         {"WEAKVAE_CONFIG", String("WEAKVAE_CONFIG")(), "Path to the YAML config file"},
		"WEAKVAE_STORE":          {"WEAKVAE_STORE", String("WEAKVAE_STORE")(), "Path to the run database"},
		"WEAKVAE_CHECKPOINT_DIR": {"WEAKVAE_CHECKPOINT_DIR", String("WEAKVAE_CHECKPOINT_DIR")(), "Directory for checkpoints"},
		"WEAKVAE_ITERATIONS":     {"WEAKVAE_ITERATIONS", Uint("WEAKVAE_ITERATIONS", 0)(), "Number of training iterations"},
		"WEAKVAE_BATCH_SIZE":     {"WEAKVAE_BATCH_SIZE", Uint("WEAKVAE_BATCH_SIZE", 0)(), "Pairs per batch"},
		"WEAKVAE_SEED":           {"WEAKVAE_SEED", Uint("WEAKVAE_SEED", 0)(), "Random seed"},
		"WEAKVAE_BETA":           {"WEAKVAE_BETA", Float("WEAKVAE_BETA", 0)(), "Target KL coefficient"},
		"WEAKVAE_WARM_UP":        {"WEAKVAE_WARM_UP", Uint("WEAKVAE_WARM_UP", 0)(), "Beta warm-up iterations"},
		"WEAKVAE_AGGREGATOR":     {"WEAKVAE_AGGREGATOR", String("WEAKVAE_AGGREGATOR")(), "Posterior aggregator: argmax or labels"},
		"WEAKVAE_NUM_THREADS":    {"WEAKVAE_NUM_THREADS", Uint("WEAKVAE_NUM_THREADS", 0)(), "CPU worker count (0 uses all cores)"},
	}
}

// Values returns every recognised variable formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
