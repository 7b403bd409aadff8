package vae

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/tensor"
)

// NamedParameters returns the parameters keyed by their qualified names.
func (m *WeakVAE[B]) NamedParameters() map[string]*nn.Parameter[B] {
	named := make(map[string]*nn.Parameter[B], len(m.params))
	for _, p := range m.params {
		named[p.Name()] = p
	}
	return named
}

// StateDict returns the parameter tensors keyed by name. Tensors are
// shared with the model, not copied.
func (m *WeakVAE[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(m.params))
	for _, p := range m.params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies tensors into the model's parameters. Every parameter
// must be present with a matching shape; extra entries are ignored.
func (m *WeakVAE[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, p := range m.params {
		src, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, p.Name())
		}
		if !src.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, p.Name(), src.Shape(), p.Tensor().Shape())
		}
	}
	for _, p := range m.params {
		copy(p.Tensor().Data(), state[p.Name()].Data())
	}
	return nil
}
