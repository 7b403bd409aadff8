package checkpoint

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/weakvae/internal/optim"
	"github.com/born-ml/weakvae/internal/tensor"
	"github.com/born-ml/weakvae/internal/vae"
)

// FormatVersion identifies the checkpoint layout in the metadata.
const FormatVersion = "weakvae/1"

// Metadata keys and tensor name prefixes.
const (
	keyFormat     = "format"
	keyRunID      = "run_id"
	keyIteration  = "iteration"
	keyBeta       = "beta"
	keyAggregator = "aggregator"
	keyConfig     = "config"
	keyTimestep   = "optim.timestep"

	prefixM = "optim.m."
	prefixV = "optim.v."
)

// Checkpoint is a snapshot of a training run.
type Checkpoint struct {
	RunID     string
	Iteration int
	Beta      float64
	Config    vae.Config
	Params    map[string]*tensor.RawTensor
	Optimizer optim.AdamState
}

// Capture snapshots the model and its optimizer. Tensors are cloned so the
// snapshot stays valid while training continues.
func Capture[B tensor.Backend](runID string, m *vae.WeakVAE[B]) *Checkpoint {
	st := m.Optimizer().State()
	return &Checkpoint{
		RunID:     runID,
		Iteration: m.Schedule().Iteration(),
		Beta:      m.Beta(),
		Config:    m.Config(),
		Params:    cloneAll(m.StateDict()),
		Optimizer: optim.AdamState{Timestep: st.Timestep, M: cloneAll(st.M), V: cloneAll(st.V)},
	}
}

// Restore loads the snapshot into m, including the optimizer moments and
// the beta schedule position.
func Restore[B tensor.Backend](c *Checkpoint, m *vae.WeakVAE[B]) error {
	for name, dst := range m.StateDict() {
		src, ok := c.Params[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingTensor, name)
		}
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("%w: %s is %v in the checkpoint, %v in the model", ErrShapeMismatch, name, src.Shape(), dst.Shape())
		}
	}
	if err := m.LoadStateDict(c.Params); err != nil {
		return fmt.Errorf("restore parameters: %w", err)
	}
	if err := m.Optimizer().LoadState(c.Optimizer); err != nil {
		return fmt.Errorf("restore optimizer: %w", err)
	}
	m.Schedule().SetIteration(c.Iteration)
	return nil
}

// Save writes c to path. Half-precision dtypes export the parameters only;
// F32 files also carry the optimizer moments.
func Save(path string, c *Checkpoint, dtype DType) error {
	cfg, err := yaml.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	meta := map[string]string{
		keyFormat:     FormatVersion,
		keyRunID:      c.RunID,
		keyIteration:  strconv.Itoa(c.Iteration),
		keyBeta:       strconv.FormatFloat(c.Beta, 'g', -1, 64),
		keyAggregator: string(c.Config.Aggregator),
		keyConfig:     string(cfg),
		keyTimestep:   strconv.Itoa(c.Optimizer.Timestep),
	}

	tensors := make(map[string]*tensor.RawTensor, len(c.Params)+len(c.Optimizer.M)+len(c.Optimizer.V))
	for name, r := range c.Params {
		if strings.HasPrefix(name, "optim.") {
			return &ValidationError{Type: "invalid_name", Tensor: name, Details: "parameter names may not use the optim. prefix"}
		}
		tensors[name] = r
	}

	if dtype != F32 {
		return WriteFile(path, tensors, meta, dtype)
	}

	for name, r := range c.Optimizer.M {
		tensors[prefixM+name] = r
	}
	for name, r := range c.Optimizer.V {
		tensors[prefixV+name] = r
	}
	return WriteFile(path, tensors, meta, F32)
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Checkpoint, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if v := f.Metadata[keyFormat]; v != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}

	c := &Checkpoint{
		RunID:  f.Metadata[keyRunID],
		Params: make(map[string]*tensor.RawTensor),
		Optimizer: optim.AdamState{
			M: make(map[string]*tensor.RawTensor),
			V: make(map[string]*tensor.RawTensor),
		},
	}
	if c.Iteration, err = strconv.Atoi(f.Metadata[keyIteration]); err != nil {
		return nil, fmt.Errorf("%w: iteration: %w", ErrBadHeader, err)
	}
	if c.Beta, err = strconv.ParseFloat(f.Metadata[keyBeta], 64); err != nil {
		return nil, fmt.Errorf("%w: beta: %w", ErrBadHeader, err)
	}
	if c.Optimizer.Timestep, err = strconv.Atoi(f.Metadata[keyTimestep]); err != nil {
		return nil, fmt.Errorf("%w: optimizer timestep: %w", ErrBadHeader, err)
	}
	if err := yaml.Unmarshal([]byte(f.Metadata[keyConfig]), &c.Config); err != nil {
		return nil, fmt.Errorf("%w: config: %w", ErrBadHeader, err)
	}

	for name, r := range f.Tensors {
		switch {
		case strings.HasPrefix(name, prefixM):
			c.Optimizer.M[strings.TrimPrefix(name, prefixM)] = r
		case strings.HasPrefix(name, prefixV):
			c.Optimizer.V[strings.TrimPrefix(name, prefixV)] = r
		default:
			c.Params[name] = r
		}
	}
	if len(c.Optimizer.M) == 0 {
		// Parameter-only export: the optimizer restarts from scratch.
		c.Optimizer.Timestep = 0
	}
	return c, nil
}

func cloneAll(src map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}
