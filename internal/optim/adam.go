package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/tensor"
)

// Adam implements Adaptive Moment Estimation.
//
//	m_t = β₁ m_{t-1} + (1 - β₁) g
//	v_t = β₂ v_{t-1} + (1 - β₂) g²
//	θ_t = θ_{t-1} - lr · m̂_t / (√v̂_t + ε)
//
// with bias-corrected m̂_t = m_t/(1 - β₁ᵗ) and v̂_t = v_t/(1 - β₂ᵗ).
//
// Moments are keyed by parameter name so that they survive a checkpoint
// round trip through State and LoadState.
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      map[string]*tensor.RawTensor
	v      map[string]*tensor.RawTensor
	device tensor.Device
}

// AdamConfig configures Adam. Zero fields take PyTorch defaults.
type AdamConfig struct {
	LR    float32    // default 0.001
	Betas [2]float32 // default [0.9, 0.999]
	Eps   float32    // default 1e-8
}

// NewAdam creates an Adam optimizer over params.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[string]*tensor.RawTensor),
		v:      make(map[string]*tensor.RawTensor),
		device: backend.Device(),
	}
}

// Step performs a single optimization step. Parameters without a gradient
// are skipped.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++

	bc1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		name := param.Name()
		m, ok := a.m[name]
		if !ok {
			m = tensor.MustRaw(param.Tensor().Shape(), a.device)
			a.m[name] = m
		}
		v, ok := a.v[name]
		if !ok {
			v = tensor.MustRaw(param.Tensor().Shape(), a.device)
			a.v[name] = v
		}

		g, md, vd := grad.Data(), m.Data(), v.Data()
		p := param.Tensor().Data()
		for i := range p {
			md[i] = a.beta1*md[i] + (1-a.beta1)*g[i]
			vd[i] = a.beta2*vd[i] + (1-a.beta2)*g[i]*g[i]
			mHat := md[i] / bc1
			vHat := vd[i] / bc2
			p[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (a *Adam[B]) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// GetLR returns the learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// Timestep returns the number of steps taken.
func (a *Adam[B]) Timestep() int {
	return a.t
}

// AdamState is a snapshot of Adam's moments for checkpointing.
type AdamState struct {
	Timestep int
	M        map[string]*tensor.RawTensor
	V        map[string]*tensor.RawTensor
}

// State returns the optimizer state. Tensors are shared, not copied.
func (a *Adam[B]) State() AdamState {
	return AdamState{Timestep: a.t, M: a.m, V: a.v}
}

// LoadState restores a snapshot taken by State. Moment shapes must match
// the parameters of the same name.
func (a *Adam[B]) LoadState(s AdamState) error {
	shapes := make(map[string]tensor.Shape, len(a.params))
	for _, p := range a.params {
		shapes[p.Name()] = p.Tensor().Shape()
	}

	m := make(map[string]*tensor.RawTensor, len(s.M))
	v := make(map[string]*tensor.RawTensor, len(s.V))
	for _, pair := range []struct {
		src map[string]*tensor.RawTensor
		dst map[string]*tensor.RawTensor
	}{{s.M, m}, {s.V, v}} {
		for name, r := range pair.src {
			want, ok := shapes[name]
			if !ok {
				return fmt.Errorf("adam: state for unknown parameter %q", name)
			}
			if !r.Shape().Equal(want) {
				return fmt.Errorf("adam: state for %q has shape %v, want %v", name, r.Shape(), want)
			}
			pair.dst[name] = r.Clone()
		}
	}

	a.t, a.m, a.v = s.Timestep, m, v
	return nil
}
